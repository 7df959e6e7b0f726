// Package app assembles the points engine services from infrastructure
// clients so every binary wires them the same way.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/watchpoints/points-engine/internal/bonuses"
	"github.com/watchpoints/points-engine/internal/earnings"
	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/maturation"
	"github.com/watchpoints/points-engine/internal/rates"
	"github.com/watchpoints/points-engine/internal/reconcile"
	"github.com/watchpoints/points-engine/internal/redemptions"
	"github.com/watchpoints/points-engine/internal/tiers"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
	"github.com/watchpoints/points-engine/pkg/outbox"
	"github.com/watchpoints/points-engine/pkg/redis"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Engine holds the wired domain services.
type Engine struct {
	Rates       *rates.Model
	Ledger      ledger.Repository
	Wallets     *wallet.Service
	Earnings    *earnings.Service
	Redemptions *redemptions.Service
	Maturation  *maturation.Service
	Reconciler  *reconcile.Service
	Bonuses     *bonuses.Service
	Outbox      *outbox.Service
	Metrics     *metrics.LedgerMetrics
}

func New(ctx context.Context, params Params) (*Engine, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	}
	cfg := params.Config
	logg := params.Logger
	conn := params.DB.DB()

	model, err := RateModel(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	tierProvider, err := tiers.NewFromConfig(cfg.Verification, params.Redis, logg.Component("tiers"))
	if err != nil {
		return nil, fmt.Errorf("build tier provider: %w", err)
	}

	ledgerMetrics := metrics.NewLedgerMetrics(params.Registerer)
	ledgerRepo := ledger.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg.Component("outbox"))

	wallets, err := wallet.NewService(wallet.ServiceParams{
		Repo:     wallet.NewRepository(conn),
		Cache:    params.Redis,
		Queue:    params.Redis,
		CacheTTL: cfg.Wallet.CacheTTL,
		Metrics:  ledgerMetrics,
		Logger:   logg.Component("wallet"),
	})
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	earn, err := earnings.NewService(earnings.ServiceParams{
		DB:      params.DB,
		Ledger:  ledgerRepo,
		Wallets: wallets,
		Tiers:   tierProvider,
		Rates:   model,
		Store:   params.Redis,
		Config:  cfg.Ledger,
		Timeout: cfg.Timeouts.Earn,
		Metrics: ledgerMetrics,
		Logger:  logg.Component("earnings"),
	})
	if err != nil {
		return nil, fmt.Errorf("earnings service: %w", err)
	}

	redeem, err := redemptions.NewService(redemptions.ServiceParams{
		DB:      params.DB,
		Repo:    redemptions.NewRepository(conn),
		Ledger:  ledgerRepo,
		Wallets: wallets,
		Outbox:  outboxSvc,
		Config:  cfg.Ledger,
		Timeout: cfg.Timeouts.Redeem,
		Metrics: ledgerMetrics,
		Logger:  logg.Component("redemptions"),
	})
	if err != nil {
		return nil, fmt.Errorf("redemptions service: %w", err)
	}

	sweeper, err := maturation.NewService(maturation.ServiceParams{
		DB:        params.DB,
		Ledger:    ledgerRepo,
		Wallets:   wallets,
		BatchSize: cfg.Cron.BatchSize,
		Metrics:   ledgerMetrics,
		Logger:    logg.Component("maturation"),
	})
	if err != nil {
		return nil, fmt.Errorf("maturation service: %w", err)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		DB:         params.DB,
		Ledger:     ledgerRepo,
		Wallets:    wallets,
		Outbox:     outboxSvc,
		Queue:      params.Redis,
		SampleSize: cfg.Reconcile.SampleSize,
		AutoRepair: cfg.Reconcile.AutoRepair,
		Metrics:    ledgerMetrics,
		Logger:     logg.Component("reconcile"),
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile service: %w", err)
	}

	grants, err := bonuses.NewService(bonuses.ServiceParams{
		DB:      params.DB,
		Ledger:  ledgerRepo,
		Wallets: wallets,
		Outbox:  outboxSvc,
		Config:  cfg.Ledger,
		Metrics: ledgerMetrics,
		Logger:  logg.Component("bonuses"),
	})
	if err != nil {
		return nil, fmt.Errorf("bonus service: %w", err)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"rate_categories": len(model.Table().BaseRates),
		"holding_period":  cfg.Ledger.HoldingPeriod.String(),
		"expiry_window":   cfg.Ledger.ExpiryWindow.String(),
	}), "points engine wired")

	return &Engine{
		Rates:       model,
		Ledger:      ledgerRepo,
		Wallets:     wallets,
		Earnings:    earn,
		Redemptions: redeem,
		Maturation:  sweeper,
		Reconciler:  reconciler,
		Bonuses:     grants,
		Outbox:      outboxSvc,
		Metrics:     ledgerMetrics,
	}, nil
}

// RateModel builds the rate model from the configured file or the built-in
// table. A rate file carries its own minimum watch time.
func RateModel(cfg config.LedgerConfig) (*rates.Model, error) {
	table, err := rates.Load(cfg.RatesFile)
	if err != nil {
		return nil, fmt.Errorf("load rate table: %w", err)
	}
	model, err := rates.NewModel(table)
	if err != nil {
		return nil, fmt.Errorf("build rate model: %w", err)
	}
	if cfg.RatesFile == "" {
		model = model.WithMinWatchSeconds(cfg.MinWatchSeconds)
	}
	return model, nil
}
