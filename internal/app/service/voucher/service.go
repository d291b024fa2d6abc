package voucher

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/internal/platform/routeros"
)

const (
	codeDigits = 5
	maxBatch   = 200
)

// Provisioner registers a prepaid credential on the access controller.
type Provisioner interface {
	CreateVoucherUser(ctx context.Context, name, password, profile string, duration time.Duration) error
}

// PlanResolver maps a controller profile back to its active plan.
type PlanResolver interface {
	ResolveActiveByProfile(ctx context.Context, profile string) (*models.Plan, error)
}

// Service generates batches of prepaid voucher codes. A voucher is a hotspot
// user whose name and password are the same short numeric code; the operator
// prints them and sells them offline, outside the payment flow.
type Service struct {
	log        *zap.SugaredLogger
	catalog    PlanResolver
	controller Provisioner
}

func NewService(log *zap.SugaredLogger, cat PlanResolver, controller Provisioner) *Service {
	return &Service{log: log, catalog: cat, controller: controller}
}

type GenerateRequest struct {
	Profile string
	Count   int
}

// Generate creates Count voucher codes under the plan backing Profile.
// Generation stops at the first controller failure; the codes created up to
// that point are returned alongside the error.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	if req.Count <= 0 || req.Count > maxBatch {
		return nil, fmt.Errorf("count must be between 1 and %d", maxBatch)
	}

	plan, err := s.catalog.ResolveActiveByProfile(ctx, req.Profile)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code, err := randomCode()
		if err != nil {
			return codes, fmt.Errorf("failed to generate code: %w", err)
		}
		if err := s.controller.CreateVoucherUser(ctx, code, code, plan.ProfileName, plan.Duration()); err != nil {
			return codes, fmt.Errorf("failed to register voucher %q: %w", code, err)
		}
		codes = append(codes, code)
	}

	s.log.Infow("voucher batch generated", "profile", plan.ProfileName, "plan", plan.Name, "count", len(codes))
	return codes, nil
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

var Module = fx.Options(
	fx.Provide(
		NewService,
		func(c *routeros.Client) Provisioner { return c },
		func(s *catalog.Service) PlanResolver { return s },
	),
)
