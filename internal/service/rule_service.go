package service

import (
	"context"
	"errors"
	"fmt"

	"kiddoquest/internal/models"
	"kiddoquest/internal/rules"
)

// RuleService manages a family's penalty rules
type RuleService struct {
	Deps
	evaluator  *rules.Evaluator
	calculator *rules.Calculator
}

// NewRuleService creates a new rule service
func NewRuleService(deps Deps, evaluator *rules.Evaluator, calculator *rules.Calculator) *RuleService {
	return &RuleService{Deps: deps, evaluator: evaluator, calculator: calculator}
}

// CreateRule validates and stores a rule. Malformed rules are rejected, never
// defaulted.
func (s *RuleService) CreateRule(ctx context.Context, identity models.Identity, rule *models.PenaltyRule) error {
	if err := requireGuardian(identity, rule.FamilyID); err != nil {
		return err
	}
	if err := s.calculator.Validate(*rule); err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrValidation, verr.Error())
		}
		return err
	}
	if c := rule.Conditions.Custom; c != "" && !s.evaluator.HasPredicate(c) {
		return fmt.Errorf("%w: unknown custom predicate %q", ErrValidation, c)
	}

	now := s.now()
	rule.ID = newID()
	rule.IsActive = true
	rule.CreatedBy = identity.UserID
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.store().Rules.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	s.log().Info("Penalty rule created", "rule_id", rule.ID, "family_id", rule.FamilyID, "trigger", rule.Trigger)
	return nil
}

// SetActive enables or soft-disables a rule. Rules are never deleted.
func (s *RuleService) SetActive(ctx context.Context, identity models.Identity, ruleID string, active bool) error {
	store := s.store()
	rule, err := store.Rules.GetRuleByID(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("failed to get rule: %w", err)
	}
	if rule == nil {
		return fmt.Errorf("%w: rule %s", ErrNotFound, ruleID)
	}
	if err := requireGuardian(identity, rule.FamilyID); err != nil {
		return err
	}
	if err := store.Rules.SetActive(ctx, ruleID, active); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}
