package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per scan cycle. cycle starts at 1.
type TickFunc func(ctx context.Context, cycle int, started time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// Jitter adds a random delay in [0, Jitter) to every wait.
	Jitter         time.Duration
	RunImmediately bool
	// MaxCycles stops the loop after that many cycles; zero runs until cancelled.
	MaxCycles int
}

// Scheduler drives repeated scan cycles.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	jitter func(time.Duration) time.Duration
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Jitter < 0 {
		panic("scheduler jitter cannot be negative")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		jitter: randomJitter,
	}
}

// Run blocks, invoking tick after every interval until ctx is cancelled or MaxCycles is reached.
// A failed tick is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	cycle := 0
	first := true
	for {
		if !(first && s.opts.RunImmediately) {
			delay := s.nextDelay()
			s.logger.Debug().Dur("delay", delay).Int("next_cycle", cycle+1).Msg("waiting for next cycle")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		first = false

		cycle++
		started := time.Now().UTC()
		s.logger.Info().Int("cycle", cycle).Msg("executing scan cycle")

		if err := tick(ctx, cycle, started); err != nil {
			s.logger.Error().Err(err).Int("cycle", cycle).Msg("scan cycle failed")
		}

		if s.opts.MaxCycles > 0 && cycle >= s.opts.MaxCycles {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.opts.Jitter <= 0 {
		return s.opts.Interval
	}
	return s.opts.Interval + s.jitter(s.opts.Jitter)
}

func randomJitter(limit time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(limit)))
}
