package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/netvend/hotspot/internal/app/api/server"
	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/app/service/ledger"
	"github.com/netvend/hotspot/internal/app/service/notify"
	"github.com/netvend/hotspot/internal/app/service/poller"
	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/internal/app/service/voucher"
	"github.com/netvend/hotspot/internal/platform/db"
	"github.com/netvend/hotspot/internal/platform/mercadopago"
	"github.com/netvend/hotspot/internal/platform/routeros"
	"github.com/netvend/hotspot/pkg/config"
	"github.com/netvend/hotspot/pkg/logger"
	"github.com/netvend/hotspot/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	metrics.Module,
	mercadopago.Module,
	routeros.Module,
	ledger.Module,
	catalog.Module,
	notify.Module,
	reconcile.Module,
	voucher.Module,
	poller.Module,
	server.Module,
)
