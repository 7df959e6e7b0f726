package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watchpoints/points-engine/pkg/logger"
)

const heartbeatInterval = time.Minute

type consumer interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping func(context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Consumers    map[string]consumer
	Dependencies []dependency
}

// Service runs every subscription consumer until the context ends or one
// of them fails.
type Service struct {
	logg      *logger.Logger
	consumers map[string]consumer
	deps      []dependency
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %s is nil", name)
		}
	}
	return &Service{
		logg:      params.Logger,
		consumers: params.Consumers,
		deps:      params.Dependencies,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		name string
		err  error
	}
	exits := make(chan exit, len(s.consumers))
	for name, c := range s.consumers {
		go func() {
			exits <- exit{name: name, err: c.Run(ctx)}
		}()
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case e := <-exits:
			if e.err != nil && !errors.Is(e.err, context.Canceled) {
				s.logg.Error(s.logg.WithField(ctx, "consumer", e.name), "consumer stopped unexpectedly", e.err)
				return e.err
			}
			return e.err
		case <-ticker.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
