package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/ledger"
	"github.com/netvend/hotspot/internal/app/service/notify"
	"github.com/netvend/hotspot/internal/app/service/validity"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/pkg/metrics"
)

var (
	// ErrValidation marks requests rejected before any ledger write.
	ErrValidation = errors.New("invalid purchase request")
	// ErrPlanUnavailable marks an unknown or inactive plan.
	ErrPlanUnavailable = errors.New("plan unavailable")
)

// Service is the reconciliation engine. Every confirmation signal — webhook
// push, poller pull, client re-check — funnels into Confirm, and the ledger's
// conditional update guarantees the provisioning and notification side
// effects run at most once per purchase.
type Service struct {
	log        *zap.SugaredLogger
	ledger     Ledger
	catalog    PlanResolver
	gateway    Gateway
	controller AccessController
	notifier   Notifier
	metrics    *metrics.Metrics

	now func() time.Time
}

func NewService(log *zap.SugaredLogger, l Ledger, cat PlanResolver, gw Gateway, ac AccessController, n Notifier, m *metrics.Metrics) *Service {
	return &Service{
		log:        log,
		ledger:     l,
		catalog:    cat,
		gateway:    gw,
		controller: ac,
		notifier:   n,
		metrics:    m,
		now:        time.Now,
	}
}

type CreatePurchaseRequest struct {
	PlanID    uint
	DeviceMAC string
	LoginURL  string
}

type CreatePurchaseResult struct {
	PurchaseID   string `json:"purchase_id"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
}

// CreatePurchase opens a PENDING ledger record and asks the gateway for a
// payment intent. The purchase id doubles as the gateway external reference.
func (s *Service) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*CreatePurchaseResult, error) {
	if req == nil || strings.TrimSpace(req.DeviceMAC) == "" || strings.TrimSpace(req.LoginURL) == "" {
		return nil, fmt.Errorf("device mac and login url are required: %w", ErrValidation)
	}

	plan, err := s.catalog.ResolveActiveByID(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan %d: %w", req.PlanID, ErrPlanUnavailable)
	}

	rec, err := s.ledger.CreatePending(ctx, req.DeviceMAC, plan, req.LoginURL)
	if err != nil {
		return nil, err
	}
	s.metrics.PurchasesCreated.Inc()

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentRequest{
		AmountCents: rec.PriceCents,
		Description: fmt.Sprintf("Voucher Wi-Fi: %s", plan.Name),
		Reference:   rec.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if err := s.ledger.AttachGatewayID(ctx, rec.ID, intent.GatewayID); err != nil {
		return nil, err
	}

	s.log.Infow("purchase created",
		"purchase_id", rec.ID,
		"device", rec.DeviceMAC,
		"plan", plan.Name,
		"gateway_id", intent.GatewayID,
	)
	return &CreatePurchaseResult{
		PurchaseID:   rec.ID,
		QRCode:       intent.QRCode,
		QRCodeBase64: intent.QRCodeBase64,
	}, nil
}

// Confirm applies a gateway status signal to a purchase. Duplicate
// confirmations are success, not error: whichever caller wins the ledger's
// conditional update performs provisioning and notification; everyone else
// no-ops. A provisioning failure after the PAID transition is logged and
// left to the client's pull check to heal; the ledger is never rolled back.
func (s *Service) Confirm(ctx context.Context, id string, gatewayStatus string) error {
	target := MapGatewayStatus(gatewayStatus)
	switch target {
	case models.PurchaseStatusPending:
		s.log.Debugw("gateway status not terminal, leaving pending", "purchase_id", id, "gateway_status", gatewayStatus)
		return nil

	case models.PurchaseStatusPaid:
		won, err := s.ledger.TryMarkPaid(ctx, id)
		if err != nil {
			return err
		}
		if !won {
			s.log.Infow("duplicate confirmation suppressed", "purchase_id", id)
			return nil
		}
		s.metrics.Reconciliations.WithLabelValues("paid").Inc()

		rec, err := s.ledger.Get(ctx, id)
		if err != nil {
			// The PAID transition is durable; provisioning will be
			// re-attempted by the client's pull check.
			s.log.Errorw("paid purchase could not be reloaded for provisioning", "purchase_id", id, "err", err)
			return nil
		}

		accessURL, err := s.provision(ctx, rec)
		if err != nil {
			s.metrics.ProvisionFailures.Inc()
			s.log.Errorw("provisioning failed, will self-heal on pull check", "purchase_id", id, "device", rec.DeviceMAC, "err", err)
			return nil
		}

		if s.notifier.Notify(rec.DeviceMAC, notify.Outcome{Status: "approved", AccessURL: accessURL}) {
			s.metrics.NotificationsPushed.Inc()
			s.log.Infow("outcome pushed to device", "purchase_id", id, "device", rec.DeviceMAC)
		} else {
			s.metrics.NotificationsDropped.Inc()
			s.log.Infow("no live channel for device, relying on pull check", "purchase_id", id, "device", rec.DeviceMAC)
		}
		return nil

	default:
		if err := s.ledger.MarkTerminal(ctx, id, target); err != nil {
			return err
		}
		s.metrics.Reconciliations.WithLabelValues(strings.ToLower(string(target))).Inc()
		s.log.Infow("purchase closed without payment", "purchase_id", id, "status", target)
		return nil
	}
}

// ConfirmByGatewayRef resolves the gateway payment id to the internal
// purchase and confirms it.
func (s *Service) ConfirmByGatewayRef(ctx context.Context, gatewayID string, gatewayStatus string) error {
	rec, err := s.ledger.GetByGatewayID(ctx, gatewayID)
	if err != nil {
		return err
	}
	return s.Confirm(ctx, rec.ID, gatewayStatus)
}

type AccessStatus string

const (
	AccessStatusNotPaid AccessStatus = "not_paid"
	AccessStatusExpired AccessStatus = "expired"
	AccessStatusValid   AccessStatus = "valid"
)

type AccessResult struct {
	Status    AccessStatus `json:"status"`
	AccessURL string       `json:"accessURL,omitempty"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
}

// CheckAccess is the pull-side correctness backstop. It finds the device's
// latest paid purchase, evaluates the validity window, and if still valid
// re-provisions through the idempotent controller upsert. Safe to call
// arbitrarily often.
func (s *Service) CheckAccess(ctx context.Context, deviceMAC string, loginURL string) (*AccessResult, error) {
	if strings.TrimSpace(deviceMAC) == "" {
		return nil, fmt.Errorf("device mac is required: %w", ErrValidation)
	}

	rec, err := s.ledger.FindLatestPaidForDevice(ctx, deviceMAC)
	if errors.Is(err, ledger.ErrNotFound) {
		return &AccessResult{Status: AccessStatusNotPaid}, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := s.planSnapshot(ctx, rec)
	if err != nil {
		s.log.Warnw("paid purchase has no resolvable plan", "purchase_id", rec.ID, "plan", rec.PlanName, "err", err)
		return &AccessResult{Status: AccessStatusNotPaid}, nil
	}

	if validity.Evaluate(*rec.PaidAt, snap.Duration(), s.now()) == validity.StateExpired {
		return &AccessResult{Status: AccessStatusExpired}, nil
	}

	if loginURL != "" && rec.LoginURL == "" {
		rec.LoginURL = loginURL
	}
	accessURL, err := s.provision(ctx, rec)
	if err != nil {
		s.metrics.ProvisionFailures.Inc()
		return nil, fmt.Errorf("failed to provision access: %w", err)
	}
	expiresAt := validity.ExpiresAt(*rec.PaidAt, snap.Duration())
	return &AccessResult{Status: AccessStatusValid, AccessURL: accessURL, ExpiresAt: &expiresAt}, nil
}

func (s *Service) provision(ctx context.Context, rec *models.Purchase) (string, error) {
	snap, err := s.planSnapshot(ctx, rec)
	if err != nil {
		return "", err
	}
	return s.controller.Provision(ctx, ProvisionRequest{
		DeviceMAC: rec.DeviceMAC,
		Profile:   snap.Profile,
		Duration:  snap.Duration(),
		LoginURL:  rec.LoginURL,
		Password:  credentialFor(rec.ID),
	})
}

func (s *Service) planSnapshot(ctx context.Context, rec *models.Purchase) (*models.PlanSnapshot, error) {
	if snap := rec.GetPlanSnapshot(); snap != nil {
		return snap, nil
	}
	// Records predating snapshots fall back to the live catalog.
	plan, err := s.catalog.ResolveByName(ctx, rec.PlanName)
	if err != nil {
		return nil, err
	}
	return plan.Snapshot(), nil
}

// credentialFor derives the hotspot password from the purchase id. The
// derivation is deterministic so every provisioning call for one purchase
// upserts the same credential instead of invalidating a live session.
func credentialFor(purchaseID string) string {
	sum := sha256.Sum256([]byte("hotspot-credential:" + purchaseID))
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
	return strings.ToLower(enc[:8])
}
