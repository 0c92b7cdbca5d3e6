package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldsync_backend/internal/config"
	"fieldsync_backend/internal/dispatch"
	"fieldsync_backend/internal/email"
	escalationrepo "fieldsync_backend/internal/escalation/repository"
	escalationsvc "fieldsync_backend/internal/escalation/service"
	"fieldsync_backend/internal/events"
	apphttp "fieldsync_backend/internal/http"
	"fieldsync_backend/internal/http/router"
	"fieldsync_backend/internal/journey"
	"fieldsync_backend/internal/sync"
	syncrepo "fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/migrations"
	"fieldsync_backend/platform/db"
	"fieldsync_backend/platform/lease"
	"fieldsync_backend/platform/logger"
	"fieldsync_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg.DatabaseURL, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer redisClient.Close()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	sender := newEmailSender(cfg, log)
	email.NewSubscriber(sender, log).Register(eventBus)

	locker := lease.NewRedisLocker(redisClient, "lease")
	stitcher := journey.NewStitcher(syncrepo.New(pool), log)
	escalator := escalationsvc.New(escalationrepo.New(pool), eventBus, log)

	dispatchClient, err := dispatch.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize dispatch client", "error", err)
		panic("failed to initialize dispatch client: " + err.Error())
	}
	defer dispatchClient.Close()

	syncModule, err := sync.NewModule(cfg, pool, locker, stitcher, escalator, dispatchClient, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize sync module", "error", err)
		panic("failed to initialize sync module: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			syncModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if cfg.RedisTLSSkip {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		} else {
			opt.TLSConfig.InsecureSkipVerify = true
		}
	}
	return redis.NewClient(opt), nil
}

func newEmailSender(cfg *config.Config, log *logger.Logger) email.Sender {
	if !cfg.EmailEnabled {
		log.Warn("SMTP not configured; escalation notifications disabled")
		return email.NoopSender{}
	}
	return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.EmailFromAddress, cfg.EmailFromName)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
