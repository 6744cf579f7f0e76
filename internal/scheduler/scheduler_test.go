package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"kiddoquest/internal/logger"
	"kiddoquest/internal/service"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(logger.Nop(), time.Second)
	err := s.Add("bad", "not a cron spec", func(context.Context, time.Time) (service.RunSummary, error) {
		return service.RunSummary{}, nil
	})
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRunAppliesTimeout(t *testing.T) {
	s := New(logger.Nop(), 20*time.Millisecond)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	var gotNow time.Time
	err := s.Add("slow", "@daily", func(ctx context.Context, now time.Time) (service.RunSummary, error) {
		gotNow = now
		select {
		case <-ctx.Done():
			return service.RunSummary{Processed: 1}, ctx.Err()
		case <-time.After(5 * time.Second):
			return service.RunSummary{}, nil
		}
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	summary, err := s.Run(context.Background(), "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if summary.Processed != 1 {
		t.Errorf("Processed = %d, want 1", summary.Processed)
	}
	if !gotNow.Equal(fixed) {
		t.Errorf("job saw now = %v, want %v", gotNow, fixed)
	}
}

func TestRunUnknownJob(t *testing.T) {
	s := New(logger.Nop(), time.Second)
	if _, err := s.Run(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestStartStop(t *testing.T) {
	s := New(logger.Nop(), time.Second)
	ran := make(chan struct{}, 1)
	if err := s.Add("tick", "@every 10ms", func(context.Context, time.Time) (service.RunSummary, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return service.RunSummary{}, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
