package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskforge/orchestrator/internal/logging"
)

// Loop runs fn repeatedly until stopped, either on a fixed interval or
// on a cron schedule. Exactly one of Interval or CronSpec must be set.
type Loop struct {
	LoopName string
	Interval time.Duration
	CronSpec string
	Fn       func(ctx context.Context) error
	Logger   *logging.Logger

	schedule cron.Schedule
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewLoop validates and builds a Loop. CronSpec, if set, is parsed with
// cron's standard five-field format.
func NewLoop(name string, interval time.Duration, cronSpec string, fn func(ctx context.Context) error, logger *logging.Logger) (*Loop, error) {
	l := &Loop{LoopName: name, Interval: interval, CronSpec: cronSpec, Fn: fn, Logger: logger}
	if cronSpec != "" {
		schedule, err := cron.ParseStandard(cronSpec)
		if err != nil {
			return nil, fmt.Errorf("supervisor: parse cron spec for %s: %w", name, err)
		}
		l.schedule = schedule
	} else if interval <= 0 {
		return nil, fmt.Errorf("supervisor: loop %s needs a positive interval or a cron spec", name)
	}
	return l, nil
}

func (l *Loop) Name() string { return l.LoopName }

// Start launches the loop's goroutine. It returns immediately; Stop
// blocks until the goroutine has exited.
func (l *Loop) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go l.run(loopCtx)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	next := l.nextDelay(time.Now())
	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			if err := l.Fn(ctx); err != nil && l.Logger != nil {
				l.Logger.WithFields(map[string]interface{}{"loop": l.LoopName}).WithError(err).Warn("supervised loop iteration failed")
			}
			timer.Reset(l.nextDelay(now))
		}
	}
}

func (l *Loop) nextDelay(from time.Time) time.Duration {
	if l.schedule != nil {
		return l.schedule.Next(from).Sub(from)
	}
	return l.Interval
}

// Stop cancels the loop's context and waits for its goroutine to exit
// or ctx to expire, whichever comes first.
func (l *Loop) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
