package scheduler

import (
	"context"
	"errors"
	"fmt"

	"conectapro/internal/leads/followup"
	"conectapro/platform/config"
	"conectapro/platform/logger"
	"conectapro/platform/redislock"

	"github.com/hibiken/asynq"
)

// sweepLockKey keeps one sweep running across every worker process.
const sweepLockKey = "followup:sweep"

// Sweeper runs one follow-up pass.
type Sweeper interface {
	Sweep(ctx context.Context) (followup.Report, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper Sweeper
	locker  redislock.Locker
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper Sweeper, locker redislock.Locker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	if locker == nil {
		locker = redislock.NewLocalLocker()
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		sweeper: sweeper,
		locker:  locker,
		log:     log,
	}

	mux.HandleFunc(TaskFollowupSweep, w.handleFollowupSweep)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
		return
	}

	<-ctx.Done()
	w.server.Shutdown()
}

func (w *Worker) handleFollowupSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowupSweepPayload(task)
	if err != nil {
		return fmt.Errorf("parse sweep payload: %v: %w", err, asynq.SkipRetry)
	}

	release, err := w.locker.TryAcquire(ctx, sweepLockKey)
	if errors.Is(err, redislock.ErrNotAcquired) {
		w.log.Debug("follow-up sweep already running", "reason", payload.Reason)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			w.log.Warn("release sweep lock", "error", rerr)
		}
	}()

	report, err := w.sweeper.Sweep(ctx)
	if report.Total() > 0 {
		w.log.Info("follow-up sweep",
			"reason", payload.Reason,
			"contact_requested", report.ContactRequested,
			"service_requested", report.ServiceRequested,
			"rating_requested", report.RatingRequested,
			"closed", report.Closed,
			"reminders", report.Reminders,
		)
	}
	return err
}
