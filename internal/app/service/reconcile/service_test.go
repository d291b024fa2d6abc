package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/netvend/hotspot/internal/app/service/ledger"
	"github.com/netvend/hotspot/internal/app/service/notify"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/pkg/metrics"
)

// fakeLedger mirrors the real ledger's atomic-transition contract in memory.
type fakeLedger struct {
	mu      sync.Mutex
	seq     int
	records map[string]*models.Purchase
	byRef   map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*models.Purchase), byRef: make(map[string]string)}
}

func (f *fakeLedger) CreatePending(_ context.Context, deviceMAC string, plan *models.Plan, loginURL string) (*models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rec := &models.Purchase{
		ID:         fmt.Sprintf("p-%d", f.seq),
		DeviceMAC:  deviceMAC,
		PlanName:   plan.Name,
		PriceCents: plan.PriceCents,
		LoginURL:   loginURL,
		Status:     models.PurchaseStatusPending,
		Extra:      datatypes.NewJSONType(&models.PurchaseExtra{PlanSnapshot: plan.Snapshot()}),
		CreatedAt:  time.Now(),
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeLedger) AttachGatewayID(_ context.Context, id string, gatewayID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if rec.GatewayID != nil && *rec.GatewayID != gatewayID {
		return ledger.ErrConflict
	}
	rec.GatewayID = &gatewayID
	f.byRef[gatewayID] = id
	return nil
}

func (f *fakeLedger) TryMarkPaid(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != models.PurchaseStatusPending {
		return false, nil
	}
	now := time.Now()
	rec.Status = models.PurchaseStatusPaid
	rec.PaidAt = &now
	return true, nil
}

func (f *fakeLedger) MarkTerminal(_ context.Context, id string, status models.PurchaseStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok && rec.Status == models.PurchaseStatusPending {
		rec.Status = status
	}
	return nil
}

func (f *fakeLedger) Get(_ context.Context, id string) (*models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeLedger) GetByGatewayID(_ context.Context, gatewayID string) (*models.Purchase, error) {
	f.mu.Lock()
	id, ok := f.byRef[gatewayID]
	f.mu.Unlock()
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return f.Get(context.Background(), id)
}

func (f *fakeLedger) FindLatestPaidForDevice(_ context.Context, deviceMAC string) (*models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Purchase
	for _, rec := range f.records {
		if rec.DeviceMAC != deviceMAC || rec.Status != models.PurchaseStatusPaid {
			continue
		}
		if latest == nil || rec.PaidAt.After(*latest.PaidAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ledger.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type fakeCatalog struct {
	plans map[uint]*models.Plan
}

func (f *fakeCatalog) ResolveActiveByID(_ context.Context, id uint) (*models.Plan, error) {
	if p, ok := f.plans[id]; ok && p.IsActive {
		return p, nil
	}
	return nil, ledger.ErrNotFound
}

func (f *fakeCatalog) ResolveByName(_ context.Context, name string) (*models.Plan, error) {
	for _, p := range f.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, ledger.ErrNotFound
}

type fakeGateway struct {
	intents int32
	status  string
	fail    bool
}

func (f *fakeGateway) CreateIntent(_ context.Context, req CreateIntentRequest) (*Intent, error) {
	if f.fail {
		return nil, errors.New("gateway unreachable")
	}
	n := atomic.AddInt32(&f.intents, 1)
	return &Intent{
		GatewayID:    fmt.Sprintf("mp-%d", n),
		QRCode:       "qr-text",
		QRCodeBase64: "cXItdGV4dA==",
	}, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, _ string) (string, error) {
	return f.status, nil
}

type fakeController struct {
	provisions int32
	fail       atomic.Bool
	lastReq    ProvisionRequest
	mu         sync.Mutex
}

func (f *fakeController) Provision(_ context.Context, req ProvisionRequest) (string, error) {
	if f.fail.Load() {
		return "", errors.New("controller unreachable")
	}
	atomic.AddInt32(&f.provisions, 1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return fmt.Sprintf("%s?username=%s&password=%s", req.LoginURL, req.DeviceMAC, req.Password), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notify.Outcome
	devices  []string
}

func (f *fakeNotifier) Notify(device string, o notify.Outcome) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, device)
	f.messages = append(f.messages, o)
	return true
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fixture struct {
	svc        *Service
	ledger     *fakeLedger
	gateway    *fakeGateway
	controller *fakeController
	notifier   *fakeNotifier
}

func newFixture() *fixture {
	l := newFakeLedger()
	cat := &fakeCatalog{plans: map[uint]*models.Plan{
		1: {ID: 1, Name: "1h/R$1.00", PriceCents: 100, ProfileName: "plano_1hora_2mega", DurationHours: 1, IsActive: true},
	}}
	gw := &fakeGateway{}
	ac := &fakeController{}
	n := &fakeNotifier{}
	svc := NewService(zap.NewNop().Sugar(), l, cat, gw, ac, n, metrics.New())
	return &fixture{svc: svc, ledger: l, gateway: gw, controller: ac, notifier: n}
}

func (fx *fixture) pendingPurchase(t *testing.T) *models.Purchase {
	t.Helper()
	res, err := fx.svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		PlanID:    1,
		DeviceMAC: "AA:BB:CC",
		LoginURL:  "http://gw.local/login",
	})
	require.NoError(t, err)
	rec, err := fx.ledger.Get(context.Background(), res.PurchaseID)
	require.NoError(t, err)
	return rec
}

func TestCreatePurchase(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	res, err := fx.svc.CreatePurchase(ctx, &CreatePurchaseRequest{PlanID: 1, DeviceMAC: "AA:BB:CC", LoginURL: "http://gw.local/login"})
	require.NoError(t, err)
	require.NotEmpty(t, res.PurchaseID)
	require.Equal(t, "qr-text", res.QRCode)

	rec, err := fx.ledger.Get(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, models.PurchaseStatusPending, rec.Status)
	require.NotNil(t, rec.GatewayID)
	require.Equal(t, "mp-1", *rec.GatewayID)
}

func TestCreatePurchase_Validation(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	_, err := fx.svc.CreatePurchase(ctx, &CreatePurchaseRequest{PlanID: 1, LoginURL: "http://gw.local/login"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = fx.svc.CreatePurchase(ctx, &CreatePurchaseRequest{PlanID: 99, DeviceMAC: "AA:BB:CC", LoginURL: "http://gw.local/login"})
	require.ErrorIs(t, err, ErrPlanUnavailable)

	// Validation failures happen before any ledger write.
	require.Empty(t, fx.ledger.records)
}

func TestConfirm_ConcurrentApprovedRunsSideEffectsOnce(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)

	const n = 25
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			errs <- fx.svc.Confirm(context.Background(), rec.ID, "approved")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := fx.ledger.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.PurchaseStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	require.Equal(t, int32(1), atomic.LoadInt32(&fx.controller.provisions))
	require.Equal(t, 1, fx.notifier.count())
}

func TestConfirm_UnknownStatusLeavesPending(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)

	require.NoError(t, fx.svc.Confirm(context.Background(), rec.ID, "in_process"))

	got, err := fx.ledger.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.PurchaseStatusPending, got.Status)
	require.Zero(t, atomic.LoadInt32(&fx.controller.provisions))
}

func TestConfirm_RejectedIsTerminal(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.Confirm(ctx, rec.ID, "rejected"))
	// A late approval must not resurrect the purchase.
	require.NoError(t, fx.svc.Confirm(ctx, rec.ID, "approved"))

	got, err := fx.ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.PurchaseStatusRejected, got.Status)
	require.Zero(t, atomic.LoadInt32(&fx.controller.provisions))
	require.Zero(t, fx.notifier.count())
}

func TestConfirm_ProvisionFailureIsNotRolledBack(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)
	ctx := context.Background()

	fx.controller.fail.Store(true)
	require.NoError(t, fx.svc.Confirm(ctx, rec.ID, "approved"))

	got, err := fx.ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.PurchaseStatusPaid, got.Status)
	require.Zero(t, fx.notifier.count())

	// The client's pull check self-heals once the controller recovers.
	fx.controller.fail.Store(false)
	res, err := fx.svc.CheckAccess(ctx, "AA:BB:CC", "")
	require.NoError(t, err)
	require.Equal(t, AccessStatusValid, res.Status)
	require.NotEmpty(t, res.AccessURL)
}

func TestConfirmByGatewayRef(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.ConfirmByGatewayRef(ctx, *rec.GatewayID, "approved"))
	got, err := fx.ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.PurchaseStatusPaid, got.Status)

	require.ErrorIs(t, fx.svc.ConfirmByGatewayRef(ctx, "mp-unknown", "approved"), ledger.ErrNotFound)
}

func TestCheckAccess_NotPaid(t *testing.T) {
	fx := newFixture()
	res, err := fx.svc.CheckAccess(context.Background(), "AA:BB:CC", "http://gw.local/login")
	require.NoError(t, err)
	require.Equal(t, AccessStatusNotPaid, res.Status)
	require.Empty(t, res.AccessURL)
}

func TestCheckAccess_ValidThenExpired(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)
	ctx := context.Background()
	require.NoError(t, fx.svc.Confirm(ctx, rec.ID, "approved"))

	paid, err := fx.ledger.Get(ctx, rec.ID)
	require.NoError(t, err)

	fx.svc.now = func() time.Time { return paid.PaidAt.Add(30 * time.Minute) }
	res, err := fx.svc.CheckAccess(ctx, "AA:BB:CC", "")
	require.NoError(t, err)
	require.Equal(t, AccessStatusValid, res.Status)
	require.NotEmpty(t, res.AccessURL)
	require.NotNil(t, res.ExpiresAt)
	require.True(t, res.ExpiresAt.Equal(paid.PaidAt.Add(time.Hour)))

	fx.svc.now = func() time.Time { return paid.PaidAt.Add(90 * time.Minute) }
	res, err = fx.svc.CheckAccess(ctx, "AA:BB:CC", "")
	require.NoError(t, err)
	require.Equal(t, AccessStatusExpired, res.Status)
	require.Empty(t, res.AccessURL)
}

func TestCheckAccess_ReprovisionsSameCredential(t *testing.T) {
	fx := newFixture()
	rec := fx.pendingPurchase(t)
	ctx := context.Background()
	require.NoError(t, fx.svc.Confirm(ctx, rec.ID, "approved"))

	first, err := fx.svc.CheckAccess(ctx, "AA:BB:CC", "")
	require.NoError(t, err)
	second, err := fx.svc.CheckAccess(ctx, "AA:BB:CC", "")
	require.NoError(t, err)

	// Idempotent upsert: the credential never rotates between pull checks.
	require.Equal(t, first.AccessURL, second.AccessURL)
}

func TestCredentialFor_Deterministic(t *testing.T) {
	require.Equal(t, credentialFor("p-1"), credentialFor("p-1"))
	require.NotEqual(t, credentialFor("p-1"), credentialFor("p-2"))
	require.Len(t, credentialFor("p-1"), 8)
}
