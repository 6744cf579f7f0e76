package service

import (
	"context"
	"fmt"

	"kiddoquest/internal/models"
)

// EventService handles on-write hooks for child activity. Each step after
// the event is recorded runs independently; a failing step is logged and the
// rest still run.
type EventService struct {
	Deps
	penalties *PenaltyService
	streaks   *StreakService
	goals     *GoalService
}

// NewEventService creates a new event service
func NewEventService(deps Deps, penalties *PenaltyService, streaks *StreakService, goals *GoalService) *EventService {
	return &EventService{Deps: deps, penalties: penalties, streaks: streaks, goals: goals}
}

// EventOutcome reports what handling an event did
type EventOutcome struct {
	EventID        string                  `json:"event_id"`
	Duplicate      bool                    `json:"duplicate,omitempty"`
	Streak         *models.Streak          `json:"streak,omitempty"`
	CompletedGoals []models.FamilyGoal     `json:"completed_goals,omitempty"`
	Penalties      []models.AppliedPenalty `json:"penalties,omitempty"`
	NeedsReview    bool                    `json:"needs_review"`
	FailedSteps    []string                `json:"failed_steps,omitempty"`
}

func (o *EventOutcome) fail(step string) {
	o.FailedSteps = append(o.FailedSteps, step)
}

// HandleQuestCompleted records a quest completion, bumps counters, advances
// the streak, feeds family goals and evaluates penalty rules
func (s *EventService) HandleQuestCompleted(ctx context.Context, event models.Event) (*EventOutcome, error) {
	event.Kind = models.EventQuestCompleted
	outcome, err := s.record(ctx, &event)
	if err != nil || outcome.Duplicate {
		return outcome, err
	}
	loc := s.location(ctx, s.store(), event.FamilyID)

	s.incrementCounters(ctx, event.FamilyID, event.OccurredAt, loc, map[string]int64{
		models.CounterQuestsCompleted: 1,
		models.CounterXPEarned:        int64(event.XPEarned()),
	})

	if event.Quest.QuestID != "" {
		s.completeQuest(ctx, event, outcome)
	}

	if activity, err := s.streaks.RecordActivity(ctx, event.FamilyID, event.ChildID, event.OccurredAt); err != nil {
		outcome.fail("streak")
		s.log().Error("Failed to update streak", "child_id", event.ChildID, "event_id", event.ID, "error", err)
	} else {
		outcome.Streak = &activity.Streak
		if activity.Break != nil {
			s.evaluate(ctx, *activity.Break, outcome)
		}
	}

	if completed, err := s.goals.Contribute(ctx, event); err != nil {
		outcome.fail("goals")
		s.log().Error("Failed to update goals", "family_id", event.FamilyID, "event_id", event.ID, "error", err)
	} else {
		outcome.CompletedGoals = completed
	}

	s.evaluate(ctx, event, outcome)
	s.Metrics.RecordEvent(string(event.Kind), nil)
	return outcome, nil
}

// HandleRewardRedeemed records a redemption, bumps counters and evaluates rules
func (s *EventService) HandleRewardRedeemed(ctx context.Context, event models.Event) (*EventOutcome, error) {
	event.Kind = models.EventRewardRedeemed
	outcome, err := s.record(ctx, &event)
	if err != nil || outcome.Duplicate {
		return outcome, err
	}
	loc := s.location(ctx, s.store(), event.FamilyID)

	s.incrementCounters(ctx, event.FamilyID, event.OccurredAt, loc, map[string]int64{
		models.CounterRewardsRedeemed: 1,
		models.CounterXPSpent:         int64(event.XPSpent()),
	})

	s.evaluate(ctx, event, outcome)
	s.Metrics.RecordEvent(string(event.Kind), nil)
	return outcome, nil
}

// HandleBehaviorFlag records a parent-flagged behavior and evaluates rules
func (s *EventService) HandleBehaviorFlag(ctx context.Context, identity models.Identity, event models.Event) (*EventOutcome, error) {
	if err := requireGuardian(identity, event.FamilyID); err != nil {
		return nil, err
	}
	event.Kind = models.EventBehaviorFlagged
	if event.Behavior != nil && event.Behavior.FlaggedBy == "" {
		event.Behavior.FlaggedBy = identity.UserID
	}
	outcome, err := s.record(ctx, &event)
	if err != nil || outcome.Duplicate {
		return outcome, err
	}
	s.evaluate(ctx, event, outcome)
	s.Metrics.RecordEvent(string(event.Kind), nil)
	return outcome, nil
}

// record validates and stores the event. Redelivered events are detected by
// ID and reported as duplicates without side effects.
func (s *EventService) record(ctx context.Context, event *models.Event) (*EventOutcome, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if event.ID == "" {
		event.ID = newID()
	}
	if !event.Validate() {
		s.Metrics.RecordEvent(string(event.Kind), ErrValidation)
		return nil, fmt.Errorf("%w: %s event requires child_id, family_id and its payload", ErrValidation, event.Kind)
	}

	outcome := &EventOutcome{EventID: event.ID}
	store := s.store()

	existing, err := store.Events.GetEventByID(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event: %w", err)
	}
	if existing != nil {
		outcome.Duplicate = true
		return outcome, nil
	}

	child, err := store.Children.GetChildByID(ctx, event.ChildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	if child == nil {
		return nil, fmt.Errorf("%w: child %s", ErrNotFound, event.ChildID)
	}
	if child.FamilyID != event.FamilyID {
		return nil, fmt.Errorf("%w: child is not in this family", ErrPermissionDenied)
	}

	if err := store.Events.CreateEvent(ctx, event); err != nil {
		// A concurrent delivery of the same event may have won the insert.
		if again, getErr := store.Events.GetEventByID(ctx, event.ID); getErr == nil && again != nil {
			outcome.Duplicate = true
			return outcome, nil
		}
		s.Metrics.RecordEvent(string(event.Kind), err)
		return nil, fmt.Errorf("failed to record event: %w", err)
	}
	return outcome, nil
}

// completeQuest flips the child's quest to completed and closes the penalty
// it remediates, if any. Quests belonging to another child are left alone.
func (s *EventService) completeQuest(ctx context.Context, event models.Event, outcome *EventOutcome) {
	store := s.store()
	marked, err := store.Quests.MarkCompleted(ctx, event.Quest.QuestID, event.FamilyID, event.ChildID, event.OccurredAt)
	if err != nil {
		outcome.fail("quest")
		s.log().Error("Failed to mark quest completed", "quest_id", event.Quest.QuestID, "error", err)
		return
	}
	if !marked {
		return
	}
	p, err := store.Penalties.GetPenaltyByRemedialQuest(ctx, event.Quest.QuestID)
	if err != nil {
		outcome.fail("remedial")
		s.log().Error("Failed to look up remedial penalty", "quest_id", event.Quest.QuestID, "error", err)
		return
	}
	if p == nil || p.Status != models.PenaltyActive || p.ChildID != event.ChildID {
		return
	}
	if err := s.penalties.Complete(ctx, p.ID); err != nil {
		outcome.fail("remedial")
		s.log().Error("Failed to complete remedial penalty", "penalty_id", p.ID, "error", err)
	}
}

func (s *EventService) evaluate(ctx context.Context, event models.Event, outcome *EventOutcome) {
	result, err := s.penalties.ProcessEvent(ctx, event)
	if err != nil {
		outcome.fail("penalties")
		s.log().Error("Failed to evaluate penalty rules", "event_id", event.ID, "kind", event.Kind, "error", err)
		return
	}
	outcome.Penalties = append(outcome.Penalties, result.Applied...)
	outcome.NeedsReview = outcome.NeedsReview || result.NeedsReview
	if result.Failed > 0 {
		outcome.fail("penalties")
	}
}
