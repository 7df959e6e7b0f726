package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchpoints/points-engine/api/controllers"
	"github.com/watchpoints/points-engine/api/middleware"
	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
	"github.com/watchpoints/points-engine/pkg/redis"
)

// WalletService is the wallet surface used by both user and admin routes.
type WalletService interface {
	controllers.WalletReader
	controllers.WalletAdmin
}

// RedemptionService covers user requests and admin settlement.
type RedemptionService interface {
	controllers.RedemptionService
	controllers.SettlementService
}

// Services bundles everything the HTTP surface calls into.
type Services struct {
	Wallets     WalletService
	Ledger      controllers.LedgerReader
	Earnings    controllers.WatchRecorder
	Redemptions RedemptionService
	Maturation  controllers.Sweeper
	Reconciler  controllers.Reconciler
	Bonuses     controllers.BonusGranter
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	svc Services,
) http.Handler {
	var httpMetrics *metrics.HTTPMetrics
	if registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(registry)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	watchPolicy := middleware.NewRateLimitPolicy(
		"watch",
		cfg.RateLimit.Window,
		cfg.RateLimit.WatchUserLimit,
		cfg.RateLimit.WatchIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "postgres", Ping: dbP.Ping},
			controllers.Dependency{Name: "redis", Ping: redisClient.Ping},
		))
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/wallet", controllers.GetWallet(svc.Wallets, logg))
		r.Get("/wallet/ledger", controllers.ListLedger(svc.Ledger, logg))
		r.With(middleware.RateLimit(watchPolicy, redisClient, logg)).
			Post("/watch-events", controllers.RecordWatchEvent(svc.Earnings, logg))

		r.Route("/redemptions", func(r chi.Router) {
			r.Post("/", controllers.CreateRedemption(svc.Redemptions, logg))
			r.Get("/", controllers.ListRedemptions(svc.Redemptions, logg))
			r.Get("/{redemptionId}", controllers.GetRedemption(svc.Redemptions, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/maturation/process", controllers.AdminProcessMaturation(svc.Maturation, logg))
		r.Post("/bonuses", controllers.AdminGrantBonus(svc.Bonuses, logg))

		r.Route("/wallets/{userId}", func(r chi.Router) {
			r.Get("/", controllers.AdminGetWallet(svc.Wallets, logg))
			r.Delete("/", controllers.AdminArchiveWallet(svc.Wallets, logg))
			r.Post("/reconcile", controllers.AdminReconcileWallet(svc.Reconciler, logg))
		})

		r.Route("/redemptions/{redemptionId}", func(r chi.Router) {
			r.Get("/", controllers.AdminGetRedemption(svc.Redemptions, logg))
			r.Post("/complete", controllers.AdminCompleteRedemption(svc.Redemptions, logg))
			r.Post("/fail", controllers.AdminFailRedemption(svc.Redemptions, logg))
		})
	})

	return r
}
