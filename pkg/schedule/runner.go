// Package schedule drives watch mode: re-running the analysis on a cron
// schedule until the context is cancelled.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"kubecase/pkg/logger"
)

// RunFunc is one analysis pass; errors are logged, not fatal, so a
// transient cluster error does not kill the watch
type RunFunc func(ctx context.Context) error

// Runner executes a RunFunc on a five-field cron schedule
type Runner struct {
	parser   cron.Parser
	schedule cron.Schedule
	spec     string
	log      *logger.Logger
}

// NewRunner parses the schedule spec (standard five-field cron)
func NewRunner(spec string, log *logger.Logger) (*Runner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return &Runner{
		parser:   parser,
		schedule: schedule,
		spec:     spec,
		log:      log,
	}, nil
}

// Run blocks, firing the RunFunc at each scheduled time, until ctx is
// cancelled
func (r *Runner) Run(ctx context.Context, run RunFunc) error {
	r.log.Infow("watch started", "schedule", r.spec)

	for {
		next := r.schedule.Next(time.Now())
		r.log.Debugw("next run scheduled", "at", next)

		select {
		case <-ctx.Done():
			r.log.Infow("watch stopped")
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		if err := run(ctx); err != nil {
			r.log.WithError(err).Errorw("scheduled analysis failed")
		}
	}
}
