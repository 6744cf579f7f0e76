// Package rules decides which penalty rules an event matches and what
// concrete consequences they impose. Everything here is pure.
package rules

import "kiddoquest/internal/models"

// Predicate is a custom condition. It must be a pure function of the event.
type Predicate func(event models.Event) bool

// Evaluator matches events against rule conditions
type Evaluator struct {
	predicates map[string]Predicate
}

// NewEvaluator creates an evaluator with the given custom predicates
func NewEvaluator(predicates map[string]Predicate) *Evaluator {
	copied := make(map[string]Predicate, len(predicates))
	for name, p := range predicates {
		copied[name] = p
	}
	return &Evaluator{predicates: copied}
}

// Matches reports whether an active rule's conditions all hold for the event
func (e *Evaluator) Matches(rule models.PenaltyRule, event models.Event) bool {
	if !rule.IsActive {
		return false
	}

	c := rule.Conditions

	if c.QuestDifficulty != "" && event.QuestDifficulty() != c.QuestDifficulty {
		return false
	}
	if c.HoursLate != nil && !c.HoursLate.Contains(event.HoursLate()) {
		return false
	}
	if c.StreakLength != nil && !c.StreakLength.Contains(event.StreakLength()) {
		return false
	}
	if c.ParentRating != nil && !c.ParentRating.Contains(event.ParentRating()) {
		return false
	}
	if c.Custom != "" {
		predicate, ok := e.predicates[c.Custom]
		if !ok || !predicate(event) {
			return false
		}
	}

	return true
}

// Match is the outcome of checking an event against a rule set
type Match struct {
	Applicable  []models.PenaltyRule
	NeedsReview bool
}

// Applicable returns the rules the event can fire and whose conditions hold.
// NeedsReview is set when any of them requires manual review.
func (e *Evaluator) Applicable(event models.Event, rules []models.PenaltyRule) Match {
	var m Match
	triggers := event.Triggers()
	for _, rule := range rules {
		if !firesOn(rule.Trigger, triggers) {
			continue
		}
		if !e.Matches(rule, event) {
			continue
		}
		m.Applicable = append(m.Applicable, rule)
		if !rule.AutoApply {
			m.NeedsReview = true
		}
	}
	return m
}

func firesOn(t models.Trigger, triggers []models.Trigger) bool {
	for _, candidate := range triggers {
		if candidate == t {
			return true
		}
	}
	return false
}
