package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 10 * time.Second, AlignToInterval: true}, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 3, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2025, 6, 1, 12, 0, 10, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("aligned tick: got %s, want %s", next, want)
	}

	// Exactly on a boundary the next tick is a full interval away.
	now = want
	if next := s.nextTick(now); !next.Equal(want.Add(10 * time.Second)) {
		t.Fatalf("boundary tick: got %s", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 7 * time.Second}, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 3, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(7 * time.Second)) {
		t.Fatalf("unaligned tick: got %s", next)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}

func TestRunDeliversTicks(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time, 4)
	go func() {
		_ = s.Run(ctx, func(_ context.Context, at time.Time) error {
			select {
			case ticks <- at:
			default:
			}
			return nil
		})
	}()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval must panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
