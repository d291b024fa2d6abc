package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/ledger"
	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/internal/platform/mercadopago"
	"github.com/netvend/hotspot/pkg/config"
)

const maxConcurrentChecks = 8

// Ledger is the slice of purchase storage the poller reads.
type Ledger interface {
	FindStalePending(ctx context.Context, olderThan time.Time) ([]*models.Purchase, error)
}

// Gateway answers pull-side status queries.
type Gateway interface {
	QueryStatus(ctx context.Context, gatewayID string) (string, error)
}

// Reconciler applies a gateway status to a purchase.
type Reconciler interface {
	Confirm(ctx context.Context, id string, gatewayStatus string) error
}

// Poller periodically re-checks PENDING purchases against the gateway so
// that lost webhooks cannot strand a paid customer. The grace period keeps
// just-created purchases out of the sweep while their webhook is in flight.
type Poller struct {
	log        *zap.SugaredLogger
	ledger     Ledger
	gateway    Gateway
	reconciler Reconciler
	interval   time.Duration
	grace      time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg *config.Config, log *zap.SugaredLogger, l Ledger, gw Gateway, r Reconciler) *Poller {
	return &Poller{
		log:        log,
		ledger:     l,
		gateway:    gw,
		reconciler: r,
		interval:   cfg.Poller.Interval,
		grace:      cfg.Poller.Grace,
	}
}

// Start launches the sweep loop. Stop with Stop.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Sweep(ctx)
			}
		}
	}()
	p.log.Infow("pending-purchase poller started", "interval", p.interval, "grace", p.grace)
}

func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.log.Infow("pending-purchase poller stopped")
}

// Sweep runs one pass: query every PENDING purchase older than the grace
// period and feed the gateway's answer through the reconciler. Per-record
// failures are logged and the batch continues.
func (p *Poller) Sweep(ctx context.Context) {
	stale, err := p.ledger.FindStalePending(ctx, time.Now().Add(-p.grace))
	if err != nil {
		p.log.Errorw("failed to list stale pending purchases", "err", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	p.log.Infow("re-checking pending purchases", "count", len(stale))

	sem := make(chan struct{}, maxConcurrentChecks)
	var wg sync.WaitGroup
	for _, rec := range stale {
		if rec.GatewayID == nil || *rec.GatewayID == "" {
			// Intent creation never finished; nothing to query.
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id, gatewayID string) {
			defer wg.Done()
			defer func() { <-sem }()
			p.check(ctx, id, gatewayID)
		}(rec.ID, *rec.GatewayID)
	}
	wg.Wait()
}

func (p *Poller) check(ctx context.Context, id, gatewayID string) {
	status, err := p.gateway.QueryStatus(ctx, gatewayID)
	if err != nil {
		p.log.Warnw("gateway status query failed", "purchase_id", id, "gateway_id", gatewayID, "err", err)
		return
	}
	if err := p.reconciler.Confirm(ctx, id, status); err != nil {
		p.log.Errorw("poll-side confirmation failed", "purchase_id", id, "status", status, "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(
		New,
		func(s *ledger.Service) Ledger { return s },
		func(c *mercadopago.Client) Gateway { return c },
		func(s *reconcile.Service) Reconciler { return s },
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Poller) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				p.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				p.Stop()
				return nil
			},
		})
	}),
)
