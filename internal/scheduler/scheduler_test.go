package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunImmediatelyAndStopsAtMaxCycles(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, RunImmediately: true, MaxCycles: 3}, zerolog.Nop())

	var cycles []int
	err := s.Run(context.Background(), func(_ context.Context, cycle int, _ time.Time) error {
		cycles = append(cycles, cycle)
		if cycle == 2 {
			return errors.New("cycle failure is logged, not fatal")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(cycles) != 3 || cycles[0] != 1 || cycles[2] != 3 {
		t.Fatalf("unexpected cycles: %v", cycles)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Run(ctx, func(context.Context, int, time.Time) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("tick should not run before the first interval elapses")
	}
}

func TestNextDelayAddsJitter(t *testing.T) {
	s := New(Options{Interval: time.Minute, Jitter: 10 * time.Second}, zerolog.Nop())
	s.jitter = func(limit time.Duration) time.Duration { return limit / 2 }

	if got := s.nextDelay(); got != time.Minute+5*time.Second {
		t.Fatalf("unexpected delay: %s", got)
	}
}

func TestNewPanicsOnInvalidInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
