package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bukukita/billing/docs"
	"github.com/bukukita/billing/internal/app/api/handlers"
	mw "github.com/bukukita/billing/internal/app/api/middleware"
	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/ledger"
	"github.com/bukukita/billing/internal/app/service/notify"
	"github.com/bukukita/billing/internal/app/service/reconcile"
	"github.com/bukukita/billing/internal/app/service/statistics"
	subsvc "github.com/bukukita/billing/internal/app/service/subscription"
	cfgpkg "github.com/bukukita/billing/pkg/config"
	metrics "github.com/bukukita/billing/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	orch *reconcile.Orchestrator,
	notifier *notify.Service,
	shell *dispatch.Shell,
	lg *ledger.Service,
	sub *subsvc.Service,
	stats *statistics.Service,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			URLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Webhook ingestion. The production path sits behind the config-gated IP
	// allowlist; the test path exists only outside prod.
	wh := r.Group("/")
	wh.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.WebhookIPAllowlist(cfg, log))
	handlers.RegisterWebhookRoutes(wh, orch, notifier, shell, log)
	if cfg.Env != cfgpkg.EnvProd {
		test := r.Group("/")
		test.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
		handlers.RegisterTestWebhookRoutes(test, orch, notifier, shell, log)
	}

	// Subscription APIs
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterSubscriptionRoutes(apiV1, sub)

	// Admin/ops APIs behind the operator JWT
	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminAuth(cfg))
	handlers.RegisterAdminRoutes(admin, lg, shell, stats, log)
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
	fx.Invoke(runServer),
)
