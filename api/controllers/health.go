package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/watchpoints/points-engine/api/responses"
	"github.com/watchpoints/points-engine/pkg/config"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Dependency is a named readiness probe.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Points-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports 503 on the first failure.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Points-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		for _, dep := range deps {
			if dep.Ping == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s unavailable", dep.Name)))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
