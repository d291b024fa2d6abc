package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/ledger"
	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/pkg/logctx"
)

type mercadoPagoWebhook struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// ApiMercadoPagoWebhook ingests payment notifications. The webhook body is
// treated as a hint only: the handler re-queries the gateway for the
// authoritative status before confirming, so a forged or stale notification
// cannot flip a purchase. Always answers 200 so the gateway stops retrying;
// a lost signal is recovered by the poller or the client's pull check.
func ApiMercadoPagoWebhook(base *zap.SugaredLogger, gw reconcile.Gateway, svc *reconcile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logctx.FromGin(c, base)

		var hook mercadoPagoWebhook
		if err := c.ShouldBindJSON(&hook); err != nil {
			log.Warnw("undecodable webhook body ignored", "err", err)
			c.Status(http.StatusOK)
			return
		}
		gatewayID := hook.Data.ID.String()
		if hook.Type != "payment" || gatewayID == "" {
			c.Status(http.StatusOK)
			return
		}

		status, err := gw.QueryStatus(c.Request.Context(), gatewayID)
		if err != nil {
			log.Warnw("gateway status query failed, webhook dropped", "gateway_id", gatewayID, "err", err)
			c.Status(http.StatusOK)
			return
		}

		if err := svc.ConfirmByGatewayRef(c.Request.Context(), gatewayID, status); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				log.Infow("webhook for unknown payment ignored", "gateway_id", gatewayID)
			} else {
				log.Errorw("webhook confirmation failed", "gateway_id", gatewayID, "status", status, "err", err)
			}
		}
		c.Status(http.StatusOK)
	}
}

func RegisterWebhookRoutes(r gin.IRouter, log *zap.SugaredLogger, gw reconcile.Gateway, svc *reconcile.Service) {
	r.POST("/webhook/mercadopago", ApiMercadoPagoWebhook(log, gw, svc))
}
