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
	log.Info("starting sync worker", "env", cfg.Env, "queue", cfg.SyncQueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg.DatabaseURL, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	sender := newEmailSender(cfg, log)
	email.NewSubscriber(sender, log).Register(eventBus)

	locker := lease.NewRedisLocker(redisClient, "lease")
	stitcher := journey.NewStitcher(syncrepo.New(pool), log)
	escalator := escalationsvc.New(escalationrepo.New(pool), eventBus, log)

	syncModule, err := sync.NewModule(cfg, pool, locker, stitcher, escalator, nil, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize sync module", "error", err)
		panic("failed to initialize sync module: " + err.Error())
	}

	worker, err := dispatch.NewWorker(cfg, syncModule.Coordinator(), log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	log.Info("sync worker running", "concurrency", cfg.SyncConcurrency)
	worker.Run(ctx)
	log.Info("sync worker stopped")
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
