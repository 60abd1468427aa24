package dispatch

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/ledger"
	cfgpkg "github.com/bukukita/billing/pkg/config"
)

func newQueue(cfg *cfgpkg.Config, log *zap.SugaredLogger) Queue {
	if cfg.Redis.Addr == "" {
		log.Warnw("redis addr not configured, using in-memory job queue")
		return NewMemoryQueue(0)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewRedisQueue(client)
}

func newShell(q Queue, lg *ledger.Service, log *zap.SugaredLogger, cfg *cfgpkg.Config) *Shell {
	return NewShell(q, lg, log, cfg.Dispatch.Workers)
}

// runShell starts the workers once every handler had a chance to register.
func runShell(lc fx.Lifecycle, s *Shell) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(newQueue),
	fx.Provide(newShell),
	fx.Invoke(runShell),
)
