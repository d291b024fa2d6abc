package reconcile

import (
	"context"
	"time"

	"github.com/netvend/hotspot/internal/app/service/notify"
	"github.com/netvend/hotspot/internal/models"
)

// Ledger is the slice of purchase storage the reconciler drives. The
// conditional TryMarkPaid update is the only idempotency gate on the whole
// confirmation path.
type Ledger interface {
	CreatePending(ctx context.Context, deviceMAC string, plan *models.Plan, loginURL string) (*models.Purchase, error)
	AttachGatewayID(ctx context.Context, id string, gatewayID string) error
	TryMarkPaid(ctx context.Context, id string) (bool, error)
	MarkTerminal(ctx context.Context, id string, status models.PurchaseStatus) error
	Get(ctx context.Context, id string) (*models.Purchase, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (*models.Purchase, error)
	FindLatestPaidForDevice(ctx context.Context, deviceMAC string) (*models.Purchase, error)
}

// PlanResolver is the read-only catalog view used during purchase creation
// and as a fallback when an old record carries no plan snapshot.
type PlanResolver interface {
	ResolveActiveByID(ctx context.Context, id uint) (*models.Plan, error)
	ResolveByName(ctx context.Context, name string) (*models.Plan, error)
}

type CreateIntentRequest struct {
	AmountCents int64
	Description string
	// Reference is the internal purchase id, echoed back by the gateway as
	// external_reference on every later signal.
	Reference string
}

type Intent struct {
	GatewayID    string
	QRCode       string
	QRCodeBase64 string
}

// Gateway creates payment intents and answers pull-side status queries.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	QueryStatus(ctx context.Context, gatewayID string) (string, error)
}

type ProvisionRequest struct {
	DeviceMAC string
	Profile   string
	Duration  time.Duration
	LoginURL  string
	// Password is supplied by the caller so that repeated provisioning for
	// the same purchase upserts the identical credential.
	Password string
}

// AccessController admits a device to the network under a named profile.
// Provision must be an idempotent upsert, safe to call repeatedly.
type AccessController interface {
	Provision(ctx context.Context, req ProvisionRequest) (accessURL string, err error)
}

// Notifier best-effort delivers the reconciliation outcome to the device.
type Notifier interface {
	Notify(device string, o notify.Outcome) bool
}
