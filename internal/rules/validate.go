package rules

import (
	"fmt"
	"strings"

	"kiddoquest/internal/models"
)

// ValidationError reports a malformed rule definition
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule %s: %s", e.Field, e.Reason)
}

// Validate rejects rule definitions that cannot be enforced. Nothing is
// defaulted: a missing trigger or unknown severity is an error.
func (c *Calculator) Validate(rule models.PenaltyRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if rule.FamilyID == "" {
		return &ValidationError{Field: "family_id", Reason: "is required"}
	}
	if rule.Trigger == "" {
		return &ValidationError{Field: "trigger", Reason: "is required"}
	}
	if !rule.Trigger.IsValid() {
		return &ValidationError{Field: "trigger", Reason: fmt.Sprintf("unknown trigger %q", rule.Trigger)}
	}
	if _, ok := c.multipliers[rule.Severity]; !ok {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", rule.Severity)}
	}
	if rule.Consequences.IsEmpty() {
		return &ValidationError{Field: "consequences", Reason: "must not be empty"}
	}
	if err := validateConsequences("consequences", rule.Consequences); err != nil {
		return err
	}
	if rule.Trigger == models.TriggerCustom && rule.Conditions.Custom == "" {
		return &ValidationError{Field: "conditions.custom", Reason: "is required for custom triggers"}
	}
	for name, r := range map[string]*models.Range{
		"conditions.hours_late":    rule.Conditions.HoursLate,
		"conditions.streak_length": rule.Conditions.StreakLength,
		"conditions.parent_rating": rule.Conditions.ParentRating,
	} {
		if r != nil && r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return &ValidationError{Field: name, Reason: "min exceeds max"}
		}
	}

	if esc := rule.Escalation; esc != nil {
		if esc.ResetPeriodHours < 0 {
			return &ValidationError{Field: "escalation.reset_period_hours", Reason: "must not be negative"}
		}
		tiers := map[string]*models.Consequences{
			"escalation.first_offense":       esc.FirstOffense,
			"escalation.second_offense":      esc.SecondOffense,
			"escalation.third_offense":       esc.ThirdOffense,
			"escalation.fourth_offense":      esc.FourthOffense,
			"escalation.subsequent_offenses": esc.SubsequentOffenses,
		}
		defined := 0
		for field, tier := range tiers {
			if tier == nil {
				continue
			}
			defined++
			if err := validateConsequences(field, *tier); err != nil {
				return err
			}
		}
		if defined == 0 {
			return &ValidationError{Field: "escalation", Reason: "defines no tiers"}
		}
	}

	return nil
}

func validateConsequences(field string, c models.Consequences) error {
	if c.XPDeduction < 0 {
		return &ValidationError{Field: field + ".xp_deduction", Reason: "must not be negative"}
	}
	if c.XPPercentage < 0 || c.XPPercentage > 100 {
		return &ValidationError{Field: field + ".xp_percentage", Reason: "must be between 0 and 100"}
	}
	if c.CooldownHours < 0 {
		return &ValidationError{Field: field + ".cooldown_hours", Reason: "must not be negative"}
	}
	return nil
}
