package service

import (
	"context"
	"fmt"

	"kiddoquest/internal/goals"
	"kiddoquest/internal/models"
	"kiddoquest/internal/repository"
	"kiddoquest/internal/validation"
)

// GoalService feeds events into family goals
type GoalService struct {
	Deps
}

// NewGoalService creates a new goal service
func NewGoalService(deps Deps) *GoalService {
	return &GoalService{Deps: deps}
}

// CreateGoal adds an active goal to a family
func (s *GoalService) CreateGoal(ctx context.Context, identity models.Identity, goal *models.FamilyGoal) error {
	if err := requireGuardian(identity, goal.FamilyID); err != nil {
		return err
	}
	if err := validation.ValidateName("title", goal.Title); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if goal.TargetValue <= 0 {
		return fmt.Errorf("%w: target_value must be positive", ErrValidation)
	}
	switch goal.Type {
	case models.GoalTotalQuests, models.GoalTotalXP:
	case models.GoalCategoryQuests:
		if goal.Category == "" {
			return fmt.Errorf("%w: category is required for category goals", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown goal type %q", ErrValidation, goal.Type)
	}

	goal.ID = newID()
	goal.Status = models.GoalActive
	goal.CurrentProgress = 0
	goal.CompletedAt = nil
	goal.CreatedAt = s.now()
	if err := s.store().Goals.CreateGoal(ctx, goal); err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// Contribute adds the event to every active goal of its family. Each goal is
// updated in its own transaction; the goals completed by this event are
// returned.
func (s *GoalService) Contribute(ctx context.Context, event models.Event) ([]models.FamilyGoal, error) {
	active, err := s.store().Goals.GetActiveGoals(ctx, event.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active goals: %w", err)
	}

	var completed []models.FamilyGoal
	for _, g := range active {
		if goals.ContributionFor(g, event) <= 0 {
			continue
		}
		updated, done, err := s.contributeOne(ctx, g.ID, event)
		if err != nil {
			s.log().Error("Failed to update goal progress", "goal_id", g.ID, "event_id", event.ID, "error", err)
			continue
		}
		if done {
			completed = append(completed, *updated)
			s.log().Info("Family goal completed", "goal_id", g.ID, "family_id", g.FamilyID)
		}
	}
	return completed, nil
}

func (s *GoalService) contributeOne(ctx context.Context, goalID string, event models.Event) (*models.FamilyGoal, bool, error) {
	var updated models.FamilyGoal
	var completed bool
	err := s.inTx(ctx, func(store *repository.Store) error {
		completed = false
		g, err := store.Goals.GetGoalByID(ctx, goalID)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("%w: goal %s", ErrNotFound, goalID)
		}
		if g.Status == models.GoalCompleted {
			updated = *g
			return nil
		}
		updated, completed = goals.Contribute(*g, event, s.now())
		return store.Goals.UpdateProgress(ctx, &updated)
	})
	return &updated, completed, err
}
