package service

import (
	"context"
	"fmt"
	"time"

	"kiddoquest/internal/models"
	"kiddoquest/internal/repository"
	"kiddoquest/internal/streaks"
)

// StreakService keeps daily streaks current and reports breaks to the
// penalty engine
type StreakService struct {
	Deps
	penalties *PenaltyService
}

// NewStreakService creates a new streak service
func NewStreakService(deps Deps, penalties *PenaltyService) *StreakService {
	return &StreakService{Deps: deps, penalties: penalties}
}

// ActivityResult is the outcome of RecordActivity
type ActivityResult struct {
	Streak     models.Streak
	Transition streaks.Transition
	// Break is set when the activity ended a streak that had not been flagged yet.
	Break *models.Event
}

// RecordActivity advances the child's daily streak for activity at t.
// Days are counted in the family's timezone.
func (s *StreakService) RecordActivity(ctx context.Context, familyID, childID string, at time.Time) (*ActivityResult, error) {
	var result ActivityResult
	err := s.inTx(ctx, func(store *repository.Store) error {
		result = ActivityResult{}
		loc := s.location(ctx, store, familyID)
		prev, err := store.Streaks.GetStreak(ctx, childID, models.StreakTypeDaily)
		if err != nil {
			return err
		}

		next, transition := streaks.Advance(prev, childID, familyID, at, loc)
		result.Streak, result.Transition = next, transition
		if transition == streaks.OutOfOrder {
			return nil
		}
		if prev != nil {
			next.Version = prev.Version
		}
		if err := store.Streaks.SaveStreak(ctx, &next); err != nil {
			return err
		}
		result.Streak = next

		if transition == streaks.Reset && !prev.Broken {
			e := streakBreakEvent(familyID, childID, prev.CurrentLength, at)
			if err := store.Events.CreateEvent(ctx, e); err != nil {
				return err
			}
			result.Break = e
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record streak activity: %w", err)
	}
	return &result, nil
}

// SweepStale flags streaks with no activity for longer than the configured
// threshold and evaluates streak-break rules. A streak that is already broken
// is never flagged twice.
func (s *StreakService) SweepStale(ctx context.Context, now time.Time) (RunSummary, error) {
	started := s.now()
	var summary RunSummary
	after := s.Config.StaleStreakAfter

	stale, err := s.store().Streaks.GetStaleStreaks(ctx, now.Add(-after), sweepBatchSize)
	if err != nil {
		s.Metrics.RecordSweep("streak_sweep", time.Since(started), 0, 0, 0, err)
		return summary, fmt.Errorf("failed to load stale streaks: %w", err)
	}

	for _, st := range stale {
		if ctx.Err() != nil {
			break
		}
		summary.Processed++
		event, err := s.breakIfStale(ctx, st.ChildID, now, after)
		if err != nil {
			summary.Failed++
			s.log().Error("Failed to break stale streak", "child_id", st.ChildID, "error", err)
			continue
		}
		if event == nil || s.penalties == nil {
			continue
		}
		result, err := s.penalties.ProcessEvent(ctx, *event)
		if err != nil {
			summary.Failed++
			s.log().Error("Failed to evaluate streak break", "child_id", st.ChildID, "error", err)
			continue
		}
		summary.Applied += len(result.Applied)
		summary.Failed += result.Failed
	}

	if ctx.Err() != nil {
		err = ctx.Err()
	}
	s.writeRunLog(ctx, "streak_sweep", started, summary, "")
	s.Metrics.RecordSweep("streak_sweep", time.Since(started), summary.Processed, summary.Applied, summary.Failed, err)
	s.log().Info("Streak sweep finished", "processed", summary.Processed, "applied", summary.Applied, "failed", summary.Failed)
	return summary, err
}

// breakIfStale re-reads the streak in a transaction and flags it broken when
// it is still stale. It returns the break event, or nil when nothing changed.
func (s *StreakService) breakIfStale(ctx context.Context, childID string, now time.Time, after time.Duration) (*models.Event, error) {
	var event *models.Event
	err := s.inTx(ctx, func(store *repository.Store) error {
		event = nil
		st, err := store.Streaks.GetStreak(ctx, childID, models.StreakTypeDaily)
		if err != nil || st == nil {
			return err
		}
		if !streaks.IsStale(*st, now, after) {
			return nil
		}
		broken := streaks.MarkBroken(*st, now)
		if err := store.Streaks.SaveStreak(ctx, &broken); err != nil {
			return err
		}
		e := streakBreakEvent(st.FamilyID, childID, st.CurrentLength, now)
		if err := store.Events.CreateEvent(ctx, e); err != nil {
			return err
		}
		event = e
		return nil
	})
	return event, err
}

// FamilyStreaks returns the streaks of every child in a family
func (s *StreakService) FamilyStreaks(ctx context.Context, identity models.Identity, familyID string) ([]models.Streak, error) {
	if err := requireFamily(identity, familyID); err != nil {
		return nil, err
	}
	list, err := s.store().Streaks.GetFamilyStreaks(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family streaks: %w", err)
	}
	return list, nil
}

func streakBreakEvent(familyID, childID string, previousLength int, at time.Time) *models.Event {
	return &models.Event{
		ID:         newID(),
		FamilyID:   familyID,
		ChildID:    childID,
		Kind:       models.EventStreakBroken,
		OccurredAt: at,
		Streak:     &models.StreakBreakEvent{PreviousLength: previousLength},
	}
}
