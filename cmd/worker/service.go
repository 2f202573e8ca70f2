package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/philiathrifts/thriftbot/internal/conversation"
	"github.com/philiathrifts/thriftbot/pkg/config"
	"github.com/philiathrifts/thriftbot/pkg/db"
	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/pubsub"
	"github.com/philiathrifts/thriftbot/pkg/redis"
)

const readinessTimeout = 10 * time.Second

// ServiceParams carries everything the worker process needs to run.
type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	PubSub   *pubsub.Client
	Consumer *conversation.Consumer
}

// Service owns the worker lifecycle: dependency readiness, the consumer
// loop, and shutdown of the shared clients.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	queue    *pubsub.Client
	consumer *conversation.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("consumer is required")
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		queue:    params.PubSub,
		consumer: params.Consumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.queue.Ping); err != nil {
		return err
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, ping func(context.Context) error) error {
	pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	if err := ping(pingCtx); err != nil {
		return fmt.Errorf("%s not ready: %w", name, err)
	}
	logg.Info(logg.WithField(ctx, "dependency", name), "dependency ready")
	return nil
}

// Run blocks until the context is canceled or the consumer stops on its own.
// Receive drains in-flight messages on cancellation before returning.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()
	s.logg.Info(ctx, "worker consuming conversation events")

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "shutdown signal received, draining consumer")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consumer stopped: %w", err)
		}
		return nil
	}
}

// Close releases the shared clients, collecting every failure.
func (s *Service) Close() error {
	var errs error
	errs = multierr.Append(errs, s.db.Close())
	errs = multierr.Append(errs, s.redis.Close())
	errs = multierr.Append(errs, s.queue.Close())
	return errs
}
