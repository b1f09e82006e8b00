package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conectapro/platform/config"
	"conectapro/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	defaultSweepInterval = 30 * time.Second
	triggerUniqueness    = 10 * time.Second
	periodicReason       = "periodic"
)

// Periodic enqueues the follow-up sweep on a fixed cadence.
type Periodic struct {
	scheduler *asynq.Scheduler
	entryID   string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	interval := cfg.GetFollowupSweepInterval()
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(_ *asynq.TaskInfo, err error) {
			if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
				log.Warn("enqueue follow-up sweep", "error", err)
			}
		},
	})

	task, err := NewFollowupSweepTask(FollowupSweepPayload{Reason: periodicReason})
	if err != nil {
		return nil, err
	}

	// A sweep still queued when the next tick fires is not duplicated.
	entryID, err := scheduler.Register(
		fmt.Sprintf("@every %s", interval),
		task,
		asynq.Queue(queueName(cfg)),
		asynq.Unique(interval),
	)
	if err != nil {
		return nil, fmt.Errorf("register follow-up sweep: %w", err)
	}

	return &Periodic{scheduler: scheduler, entryID: entryID, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
		return
	}
	p.log.Info("follow-up sweep registered", "entry", p.entryID)

	<-ctx.Done()
	p.scheduler.Shutdown()
}
