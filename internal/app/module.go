package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/bukukita/billing/internal/app/api/server"
	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/ledger"
	"github.com/bukukita/billing/internal/app/service/notify"
	"github.com/bukukita/billing/internal/app/service/reconcile"
	"github.com/bukukita/billing/internal/app/service/signature"
	"github.com/bukukita/billing/internal/app/service/statistics"
	"github.com/bukukita/billing/internal/app/service/subscription"
	"github.com/bukukita/billing/internal/app/service/sweeper"
	"github.com/bukukita/billing/internal/platform/db"
	"github.com/bukukita/billing/internal/platform/midtrans"
	"github.com/bukukita/billing/pkg/config"
	"github.com/bukukita/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	midtrans.Module,
	signature.Module,
	ledger.Module,
	subscription.Module,
	dispatch.Module,
	notify.Module,
	reconcile.Module,
	sweeper.Module,
	statistics.Module,
	server.Module,
)
