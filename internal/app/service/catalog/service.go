package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/netvend/hotspot/internal/models"
)

var (
	ErrNotFound = errors.New("plan not found")
	ErrInvalid  = errors.New("invalid plan")
)

type ProfileRequest struct {
	Name           string
	RateLimit      string
	SessionTimeout string
}

// ProfileManager mirrors catalog changes onto the access controller so that
// every active plan has a matching hotspot profile.
type ProfileManager interface {
	EnsureProfile(ctx context.Context, req ProfileRequest) error
	RemoveProfile(ctx context.Context, name string) error
}

// Service owns the plan catalog. Purchases snapshot the fields they need, so
// catalog edits never affect already-created purchases.
type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	profiles ProfileManager
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, profiles ProfileManager) *Service {
	return &Service{db: db, log: log, profiles: profiles}
}

// ResolveActiveByID returns the plan only if it exists and is active;
// inactive plans are not purchasable.
func (s *Service) ResolveActiveByID(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &plan, nil
}

func (s *Service) ResolveByName(ctx context.Context, name string) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &plan, nil
}

// ResolveActiveByProfile returns the active plan backing a controller
// profile; voucher generation keys on the profile name.
func (s *Service) ResolveActiveByProfile(ctx context.Context, profile string) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("profile_name = ? AND is_active = ?", profile, true).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %q: %w", profile, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &plan, nil
}

// ListActive returns purchasable plans, cheapest first.
func (s *Service) ListActive(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_cents ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// List returns all plans for the admin panel.
func (s *Service) List(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// Save creates or updates a plan and pushes the matching hotspot profile to
// the access controller first; a controller failure leaves the catalog
// untouched.
func (s *Service) Save(ctx context.Context, plan *models.Plan) error {
	if err := validate(plan); err != nil {
		return err
	}

	if err := s.profiles.EnsureProfile(ctx, ProfileRequest{
		Name:           plan.ProfileName,
		RateLimit:      plan.RateLimit(),
		SessionTimeout: plan.SessionTimeout(),
	}); err != nil {
		return fmt.Errorf("failed to push profile %q: %w", plan.ProfileName, err)
	}

	if err := s.db.WithContext(ctx).Save(plan).Error; err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	s.log.Infow("plan saved", "plan_id", plan.ID, "name", plan.Name, "profile", plan.ProfileName)
	return nil
}

// Delete removes the plan and its controller profile.
func (s *Service) Delete(ctx context.Context, id uint) error {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	if err := s.profiles.RemoveProfile(ctx, plan.ProfileName); err != nil {
		return fmt.Errorf("failed to remove profile %q: %w", plan.ProfileName, err)
	}

	if err := s.db.WithContext(ctx).Delete(&plan).Error; err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	s.log.Infow("plan deleted", "plan_id", id, "name", plan.Name)
	return nil
}

func validate(plan *models.Plan) error {
	if plan == nil {
		return ErrInvalid
	}
	if strings.TrimSpace(plan.Name) == "" || strings.TrimSpace(plan.ProfileName) == "" {
		return fmt.Errorf("name and profile are required: %w", ErrInvalid)
	}
	if plan.PriceCents < 0 {
		return fmt.Errorf("price must not be negative: %w", ErrInvalid)
	}
	if plan.DurationHours <= 0 {
		return fmt.Errorf("duration must be positive: %w", ErrInvalid)
	}
	return nil
}
