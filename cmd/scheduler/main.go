package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conectapro/internal/events"
	"conectapro/internal/leads/followup"
	"conectapro/internal/leads/outbound"
	"conectapro/internal/leads/repository"
	"conectapro/internal/scheduler"
	"conectapro/internal/whatsapp"
	"conectapro/platform/config"
	"conectapro/platform/db"
	"conectapro/platform/logger"
	"conectapro/platform/redislock"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if !cfg.IsRedisEnabled() {
		panic("REDIS_URL is required for the scheduler; without it the API runs follow-ups in process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
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

	eventBus := events.NewInMemoryBus(log)

	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		panic("failed to parse redis url: " + err.Error())
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()
	locker := redislock.NewRedisLocker(redisClient, redislock.Config{Prefix: "conectapro:lock:", TTL: 5 * time.Minute})

	whatsappClient := whatsapp.NewClient(cfg, cfg.GetPhoneDefaultRegion(), log)
	dispatcher := outbound.NewDispatcher(whatsappClient, cfg.GetWhatsAppProviderTemplateName(), cfg.GetWhatsAppProviderTemplateLang(), log)
	sweeper := followup.NewSweeper(repository.New(pool), dispatcher, eventBus, followup.Options{
		ContactAfter:   cfg.GetFollowupContactAfter(),
		ReminderEvery:  cfg.GetFollowupReminderEvery(),
		PracticalBlock: cfg.GetPracticalBlock(),
	}, log)

	worker, err := scheduler.NewWorker(cfg, sweeper, locker, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		periodic.Run(gctx)
		return nil
	})
	// Catch up on anything that came due while no scheduler was running.
	if err := client.TriggerFollowupSweep(ctx, "startup"); err != nil {
		log.Warn("failed to enqueue startup sweep", "error", err)
	}

	_ = g.Wait()
	eventBus.Wait()
	log.Info("scheduler stopped")
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
