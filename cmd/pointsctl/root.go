package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/watchpoints/points-engine/internal/app"
	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/redis"
)

// loadConfig is swapped in tests.
var loadConfig = func() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

var rootCmd = &cobra.Command{
	Use:           "pointsctl",
	Short:         "Operate the points ledger",
	Long:          `Operator commands for the points ledger: run sweeps, inspect and reconcile wallets, print the rate table and mint tokens for testing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runtime is a fully wired engine plus the clients it owns.
type runtime struct {
	cfg    *config.Config
	logg   *logger.Logger
	db     *db.Client
	redis  *redis.Client
	engine *app.Engine
}

func (r *runtime) Close() {
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.logg.Error(context.Background(), "error closing redis", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logg.Error(context.Background(), "error closing database", err)
		}
	}
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "pointsctl"

	rt := &runtime{
		cfg: cfg,
		logg: logger.New(logger.Options{
			ServiceName: "pointsctl",
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
			Output:      os.Stderr,
		}),
	}

	rt.db, err = db.New(ctx, cfg.DB, rt.logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.redis, err = redis.New(ctx, cfg.Redis, rt.logg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.engine, err = app.New(ctx, app.Params{
		Config: cfg,
		Logger: rt.logg,
		DB:     rt.db,
		Redis:  rt.redis,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("wire points engine: %w", err)
	}
	return rt, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
