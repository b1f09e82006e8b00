package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conectapro/internal/events"
	apphttp "conectapro/internal/http"
	"conectapro/internal/http/router"
	"conectapro/internal/intent"
	"conectapro/internal/intent/classifier"
	"conectapro/internal/leads/flow"
	"conectapro/internal/leads/followup"
	"conectapro/internal/leads/inbound"
	"conectapro/internal/leads/matching"
	"conectapro/internal/leads/outbound"
	"conectapro/internal/leads/repository"
	"conectapro/internal/locality"
	"conectapro/internal/metrics"
	"conectapro/internal/webhook"
	"conectapro/internal/whatsapp"
	"conectapro/platform/config"
	"conectapro/platform/db"
	"conectapro/platform/logger"
	"conectapro/platform/redislock"
	"conectapro/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New(nil)
	appMetrics.Subscribe(eventBus)

	resolver, err := newResolver(cfg, log)
	if err != nil {
		log.Error("failed to load intent catalog", "error", err)
		panic("failed to load intent catalog: " + err.Error())
	}

	locker, closeRedis, err := newLocker(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer closeRedis()

	repo := repository.New(pool)
	normalizer := locality.NewNormalizer(cfg.GetLocalityAliases())
	matcher := matching.NewEngine(repo, normalizer, cfg.GetTopProvidersLimit(), log)
	whatsappClient := whatsapp.NewClient(cfg, cfg.GetPhoneDefaultRegion(), log)
	if !whatsappClient.Configured() {
		log.Warn("whatsapp credentials missing; outbound messages are only logged")
	}
	dispatcher := outbound.NewDispatcher(whatsappClient, cfg.GetWhatsAppProviderTemplateName(), cfg.GetWhatsAppProviderTemplateLang(), log)

	engine := flow.NewEngine(flow.Deps{
		Store:      repo,
		Providers:  repo,
		Resolver:   resolver,
		Normalizer: normalizer,
		Matcher:    matcher,
		Dispatcher: dispatcher,
		Bus:        eventBus,
		Locker:     locker,
		Region:     cfg.GetPhoneDefaultRegion(),
		Log:        log,
	})

	webhookModule := webhook.NewModule(webhook.HandlerConfig{
		VerifyToken: cfg.GetWhatsAppVerifyToken(),
		AppSecret:   cfg.GetWhatsAppAppSecret(),
		Region:      cfg.GetPhoneDefaultRegion(),
		Turns:       engine,
		Gate:        inbound.NewGate(repo),
		Validator:   validator.New(),
		Observer:    appMetrics,
		Log:         log,
	})

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewHealthChecker(pool),
		Metrics:  appMetrics.Handler(),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.IsRedisEnabled() {
		log.Info("follow-up sweeps delegated to the scheduler process")
	} else {
		sweeper := followup.NewSweeper(repo, dispatcher, eventBus, followupOptions(cfg), log)
		loop := followup.NewLoop(sweeper, cfg.GetFollowupSweepInterval())
		g.Go(func() error {
			loop.Run(gctx)
			return nil
		})
		log.Info("follow-up sweep running in process", "interval", cfg.GetFollowupSweepInterval())
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
	}
	eventBus.Wait()
	log.Info("server stopped")
}

func newResolver(cfg *config.Config, log *logger.Logger) (*intent.Resolver, error) {
	var (
		catalog *intent.Catalog
		err     error
	)
	if path := cfg.GetIntentCatalogPath(); path != "" {
		catalog, err = intent.LoadCatalogFile(path)
	} else {
		catalog, err = intent.DefaultCatalog()
	}
	if err != nil {
		return nil, err
	}

	var opts []intent.ResolverOption
	if cfg.IsClassifierEnabled() {
		opts = append(opts, intent.WithClassifier(classifier.New(cfg), cfg.GetClassifierTimeout()))
		log.Info("intent classifier enabled", "model", cfg.GetClassifierModel())
	}
	return intent.NewResolver(catalog, log, opts...), nil
}

// newLocker returns a Redis-backed locker when Redis is configured so several API
// replicas serialize the same customer.
func newLocker(cfg *config.Config) (redislock.Locker, func(), error) {
	if !cfg.IsRedisEnabled() {
		return redislock.NewLocalLocker(), func() {}, nil
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	return redislock.NewRedisLocker(client, redislock.Config{Prefix: "conectapro:lock:"}), func() { _ = client.Close() }, nil
}

func followupOptions(cfg config.FollowupConfig) followup.Options {
	return followup.Options{
		ContactAfter:   cfg.GetFollowupContactAfter(),
		ReminderEvery:  cfg.GetFollowupReminderEvery(),
		PracticalBlock: cfg.GetPracticalBlock(),
	}
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
