package sync

import (
	"context"
	"log"
	"time"
)

// Runner drives the controller from a recurring timer: one fire after
// the initial delay, then one per interval. The controller is the
// timer's only handler.
type Runner struct {
	Controller   *Controller
	InitialDelay time.Duration
	Interval     time.Duration
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	delay := r.InitialDelay
	if delay <= 0 {
		delay = time.Minute
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}
	r.fire(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("runner: stopping")
			return
		case <-ticker.C:
			r.fire(ctx)
		}
	}
}

func (r *Runner) fire(ctx context.Context) {
	report := r.Controller.RunCycle(ctx)
	if report.Skipped != "" {
		log.Printf("runner: cycle skipped: %s", report.Skipped)
	}
}
