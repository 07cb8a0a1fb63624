package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, time.June, 12, 23, 59, 30, 0, time.UTC)
	got := s.nextTick(now)
	want := time.Date(2024, time.June, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextTick = %v, want %v", got, want)
	}

	onBoundary := time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC)
	if got := s.nextTick(onBoundary); !got.Equal(onBoundary.Add(time.Minute)) {
		t.Fatalf("boundary nextTick = %v", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 90 * time.Second}, zerolog.Nop())
	now := time.Date(2024, time.June, 12, 10, 0, 7, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(90 * time.Second)) {
		t.Fatalf("nextTick = %v", got)
	}
	if got := s.bucketStart(now); !got.Equal(now) {
		t.Fatalf("bucketStart = %v", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			if ticks.Add(1) >= 3 {
				cancel()
			}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
