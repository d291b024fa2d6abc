package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/notify"
	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/pkg/logctx"
	"github.com/netvend/hotspot/pkg/response"
)

const streamKeepalive = 15 * time.Second

// PlanCatalog is the read side of the catalog the portal needs.
type PlanCatalog interface {
	ListActive(ctx context.Context) ([]*models.Plan, error)
}

type planResp struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	PriceCents    int64  `json:"price_cents"`
	DurationHours int64  `json:"duration_hours"`
}

func ApiListPlans(cat PlanCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := cat.ListActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		out := lo.Map(plans, func(p *models.Plan, _ int) planResp {
			return planResp{ID: p.ID, Name: p.Name, PriceCents: p.PriceCents, DurationHours: p.DurationHours}
		})
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type createPurchaseReq struct {
	PlanID    uint   `json:"plan_id" binding:"required"`
	DeviceMAC string `json:"mac" binding:"required"`
	LoginURL  string `json:"login_url" binding:"required"`
}

func ApiCreatePurchase(svc *reconcile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPurchaseReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.CreatePurchase(c.Request.Context(), &reconcile.CreatePurchaseRequest{
			PlanID:    req.PlanID,
			DeviceMAC: req.DeviceMAC,
			LoginURL:  req.LoginURL,
		})
		if err != nil {
			if errors.Is(err, reconcile.ErrValidation) || errors.Is(err, reconcile.ErrPlanUnavailable) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// ApiAccessStatus is the pull-side check a captive-portal page polls. It
// answers from the ledger and, when the window is still open, re-provisions
// through the idempotent controller upsert. Adapter failures are logged and
// surface to the device only as a retryable generic message.
func ApiAccessStatus(base *zap.SugaredLogger, svc *reconcile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		mac := strings.TrimSpace(c.Query("mac"))
		if mac == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "mac is required"))
			return
		}

		res, err := svc.CheckAccess(c.Request.Context(), mac, c.Query("loginUrl"))
		if err != nil {
			logctx.FromGin(c, base).Errorw("access status check failed", "device", mac, "err", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, "temporarily unavailable, try again"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// ApiNotificationStream holds an SSE connection open for the device and
// relays the one-shot payment outcome. The stream ends after delivery; the
// client falls back to the status endpoint if the connection drops.
func ApiNotificationStream(reg *notify.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		mac := strings.TrimSpace(c.Query("mac"))
		if mac == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "mac is required"))
			return
		}

		ch := reg.Register(mac)
		defer reg.Deregister(mac, ch)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		keepalive := time.NewTicker(streamKeepalive)
		defer keepalive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case o, ok := <-ch:
				if !ok {
					// Replaced by a newer connection for the same device.
					return false
				}
				c.SSEvent("outcome", o)
				return false
			case <-keepalive.C:
				c.SSEvent("keepalive", "ping")
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func RegisterPortalRoutes(r gin.IRouter, log *zap.SugaredLogger, svc *reconcile.Service, cat PlanCatalog, reg *notify.Registry) {
	r.GET("/plans", ApiListPlans(cat))
	r.POST("/purchases", ApiCreatePurchase(svc))
	r.GET("/purchases/status", ApiAccessStatus(log, svc))
	r.GET("/notifications/stream", ApiNotificationStream(reg))
}
