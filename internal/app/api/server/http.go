package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/api/handlers"
	mw "github.com/netvend/hotspot/internal/app/api/middleware"
	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/app/service/notify"
	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/internal/app/service/voucher"
	cfgpkg "github.com/netvend/hotspot/pkg/config"
	"github.com/netvend/hotspot/pkg/metrics"
)

func newEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Tracing and metrics apply to every route; request logger & access log
	// are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	r.Use(m.GinMiddleware(func(c *gin.Context) string {
		if fp := c.FullPath(); fp != "" {
			return fp
		}
		return c.Request.URL.Path
	}))
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	recsvc *reconcile.Service,
	gw reconcile.Gateway,
	cat *catalog.Service,
	reg *notify.Registry,
	vch *voucher.Service,
) {
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	handlers.RegisterPortalRoutes(apiV1, log, recsvc, cat, reg)
	handlers.RegisterWebhookRoutes(apiV1, log, gw, recsvc)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), cfg, cat, vch)
}

// runMetricsServer exposes the Prometheus registry on a side listener so the
// scrape surface never shares a port with the portal.
func runMetricsServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, m *metrics.Metrics) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("metrics listener started", "addr", cfg.MetricsAddr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("metrics server error: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runMetricsServer),
	fx.Invoke(runServer),
)
