package reconcile

import (
	"go.uber.org/fx"

	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/app/service/ledger"
	"github.com/netvend/hotspot/internal/app/service/notify"
)

// Gateway and AccessController bindings live in the platform modules, which
// import this package for the port types.
var Module = fx.Options(
	fx.Provide(
		NewService,
		func(s *ledger.Service) Ledger { return s },
		func(s *catalog.Service) PlanResolver { return s },
		func(r *notify.Registry) Notifier { return r },
	),
)
