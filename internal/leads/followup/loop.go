package followup

import (
	"context"
	"time"
)

// Loop sweeps on a ticker. It is used when no Redis is configured for the task scheduler.
type Loop struct {
	sweeper  *Sweeper
	interval time.Duration
}

func NewLoop(sweeper *Sweeper, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Loop{sweeper: sweeper, interval: interval}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (l *Loop) Run(ctx context.Context) {
	if l == nil || l.sweeper == nil {
		return
	}

	l.sweep(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *Loop) sweep(ctx context.Context) {
	if _, err := l.sweeper.Sweep(ctx); err != nil {
		l.sweeper.log.Warn("follow-up sweep failed", "error", err)
	}
}
