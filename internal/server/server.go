package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository/memory"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	closers []io.Closer
}

// NewServer wraps the router built from d in an http.Server. closers are released by Close.
func NewServer(cfg *config.Config, logger *zap.Logger, d Deps, closers ...io.Closer) *Server {
	d.Config, d.Logger = cfg, logger

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      NewRouter(d, NewServices(d)),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		closers: closers,
	}
}

// Build selects the store, gateway and notifier named by cfg and returns a ready server.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	var (
		d       Deps
		closers []io.Closer
	)

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using the in-memory store; data is lost on restart")
		d.Repos = MemoryRepositories(memory.New())
	case "postgres", "":
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, err
		}
		closers = append(closers, db)
		logger.Info("Database health check", zap.Any("health", db.Health()))

		if err := database.RunMigrations(db.DB(), logger); err != nil {
			closeAll(closers, logger)
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations completed successfully")
		d.Repos = PostgresRepositories(db.DB())
		d.Health = db.Health
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	gateway, err := buildGateway(cfg.Payments, logger)
	if err != nil {
		closeAll(closers, logger)
		return nil, err
	}
	d.Gateway = gateway

	if cfg.RateLimit.Enabled || cfg.Notifications.Driver == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, rate limiting disabled", zap.Error(err))
			client.Close()
		} else {
			closers = append(closers, client)
			d.Redis = client
		}
	}

	switch {
	case cfg.Notifications.Driver == "redis" && d.Redis != nil:
		d.Dispatcher = notify.NewRedisDispatcher(d.Redis, cfg.Notifications.QueueKey)
	default:
		d.Dispatcher = notify.NewLogDispatcher(logger.Named("notify"))
	}

	return NewServer(cfg, logger, d, closers...), nil
}

func buildGateway(cfg config.PaymentsConfig, logger *zap.Logger) (payment.Gateway, error) {
	switch cfg.Driver {
	case "stripe":
		return payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.SecretKey,
			WebhookSecret: cfg.WebhookSecret,
			Currency:      cfg.Currency,
			Logger:        logger.Named("stripe"),
		})
	case "fake", "":
		logger.Warn("Using the fake payment gateway")
		secret := cfg.WebhookSecret
		if secret == "" {
			secret = "whsec_local"
		}
		return payment.NewFakeGateway(secret, cfg.Currency), nil
	default:
		return nil, fmt.Errorf("unknown payment driver %q", cfg.Driver)
	}
}

func closeAll(closers []io.Closer, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Error("Failed to close resource", zap.Error(err))
		}
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")
	closeAll(s.closers, s.logger)
	s.logger.Sync()
	return nil
}
