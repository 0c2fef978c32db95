// Package scheduler runs a job on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Validate rejects cron expressions gronx cannot parse.
func Validate(expr string) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q", expr)
	}
	return nil
}

// Scheduler fires Job at every tick of Expr. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	Expr string
	Name string
	Job  Job
	Log  zerolog.Logger

	// now is swapped in tests.
	now func() time.Time

	mu      sync.Mutex
	running bool
}

func New(name, expr string, job Job, log zerolog.Logger) (*Scheduler, error) {
	if err := Validate(expr); err != nil {
		return nil, err
	}
	return &Scheduler{
		Expr: expr,
		Name: name,
		Job:  job,
		Log:  log.With().Str("component", "scheduler").Str("job", name).Logger(),
		now:  time.Now,
	}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.Expr, t, false)
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Log.Info().Str("cron", s.Expr).Msg("scheduler starting")
	for {
		next, err := s.Next(s.now())
		if err != nil {
			s.Log.Error().Err(err).Msg("next tick")
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
			s.RunNow(ctx)
		case <-ctx.Done():
			s.Log.Info().Msg("scheduler stopping")
			return ctx.Err()
		}
	}
}

// RunNow executes the job immediately unless a run is already in flight.
// It reports whether the job ran.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now()
	if err := s.Job(ctx); err != nil {
		s.Log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("scheduled run failed")
		return true
	}
	s.Log.Info().Dur("elapsed", time.Since(started)).Msg("scheduled run finished")
	return true
}
