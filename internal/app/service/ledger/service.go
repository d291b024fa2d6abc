package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/pkg/tool"
)

// Service owns purchase storage. It is the only component allowed to write
// purchase status; everything else goes through the reconciler, which calls
// in here.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// CreatePending inserts a new purchase in PENDING, snapshotting the plan.
func (s *Service) CreatePending(ctx context.Context, deviceMAC string, plan *models.Plan, loginURL string) (*models.Purchase, error) {
	rec := &models.Purchase{
		ID:         tool.GenerateUUIDV7(),
		DeviceMAC:  deviceMAC,
		PlanName:   plan.Name,
		PriceCents: plan.PriceCents,
		LoginURL:   loginURL,
		Status:     models.PurchaseStatusPending,
		Extra:      datatypes.NewJSONType(&models.PurchaseExtra{PlanSnapshot: plan.Snapshot()}),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return rec, nil
}

// AttachGatewayID binds the gateway payment id to the purchase. Binding the
// same id again is a no-op; binding a different id over an existing one is
// ErrConflict.
func (s *Service) AttachGatewayID(ctx context.Context, id string, gatewayID string) error {
	res := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND (gateway_id IS NULL OR gateway_id = ?)", id, gatewayID).
		Update("gateway_id", gatewayID)
	if res.Error != nil {
		return fmt.Errorf("failed to attach gateway id: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Zero rows: either the purchase does not exist or the reference is
	// already bound to another value.
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("purchase %s: %w", id, ErrConflict)
}

// TryMarkPaid performs the PENDING->PAID transition as a single conditional
// update and stamps paid_at. It returns true only for the caller that wins
// the transition; any concurrent or later caller observes false. This is the
// sole idempotency gate for the whole reconciliation path.
func (s *Service) TryMarkPaid(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, models.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":  models.PurchaseStatusPaid,
			"paid_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark paid: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkTerminal moves a PENDING purchase into a non-PAID terminal status.
// Already-terminal records are left untouched.
func (s *Service) MarkTerminal(ctx context.Context, id string, status models.PurchaseStatus) error {
	if !status.Terminal() || status == models.PurchaseStatusPaid {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, models.PurchaseStatusPending).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to mark terminal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Infow("terminal transition skipped, record no longer pending", "purchase_id", id, "status", status)
	}
	return nil
}

// Get loads one purchase by internal id.
func (s *Service) Get(ctx context.Context, id string) (*models.Purchase, error) {
	var rec models.Purchase
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("purchase %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	return &rec, nil
}

// GetByGatewayID loads one purchase by its gateway payment id.
func (s *Service) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Purchase, error) {
	var rec models.Purchase
	err := s.db.WithContext(ctx).Where("gateway_id = ?", gatewayID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("gateway id %s: %w", gatewayID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	return &rec, nil
}

// FindLatestPaidForDevice returns the most recently paid purchase for a
// device, or ErrNotFound.
func (s *Service) FindLatestPaidForDevice(ctx context.Context, deviceMAC string) (*models.Purchase, error) {
	var rec models.Purchase
	err := s.db.WithContext(ctx).
		Where("device_mac = ? AND status = ?", deviceMAC, models.PurchaseStatusPaid).
		Order("paid_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("device %s: %w", deviceMAC, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest paid purchase: %w", err)
	}
	return &rec, nil
}

// FindStalePending returns PENDING purchases created before olderThan,
// oldest first. The poller uses this to re-query the gateway.
func (s *Service) FindStalePending(ctx context.Context, olderThan time.Time) ([]*models.Purchase, error) {
	var recs []*models.Purchase
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PurchaseStatusPending, olderThan).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending purchases: %w", err)
	}
	return recs, nil
}
