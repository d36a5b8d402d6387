// Package scheduler drives periodic automation passes.
package scheduler

import (
	"context"
	"time"

	"vigil/internal/automation"
	"vigil/internal/logger"
)

// IntervalScheduler invokes the orchestrator every Interval. Passes
// are serialized here in addition to the orchestrator's own
// single-flight guard, so a slow pass delays the next tick instead of
// stacking busy reports.
type IntervalScheduler struct {
	Interval       time.Duration
	RunImmediately bool
	Services       []string

	orch  *automation.Orchestrator
	nowFn func() time.Time
}

func NewIntervalScheduler(orch *automation.Orchestrator, interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{
		Interval: interval,
		orch:     orch,
		nowFn:    time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *IntervalScheduler) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		logger.Warnf("scheduler: invalid interval=%s, exit", s.Interval)
		return nil
	}
	logger.Infof("scheduler: started interval=%s run_immediately=%v services=%v",
		s.Interval, s.RunImmediately, s.Services)

	if s.RunImmediately {
		s.runOnce(ctx)
	}

	timer := time.NewTimer(s.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler: ctx done, exit")
			return ctx.Err()
		case <-timer.C:
		}
		s.runOnce(ctx)
		timer.Reset(s.Interval)
	}
}

func (s *IntervalScheduler) runOnce(ctx context.Context) {
	started := s.nowFn()
	rep := s.orch.Run(ctx, automation.Options{Services: s.Services})
	if rep.Skipped {
		logger.Debugf("scheduler: pass skipped (%s)", rep.Reason)
		return
	}
	logger.Debugf("scheduler: pass finished triggered=%d errors=%d elapsed=%s",
		rep.TotalTriggered, len(rep.TotalErrors), s.nowFn().Sub(started).Truncate(time.Millisecond))
}
