package rules

import (
	"time"

	"kiddoquest/internal/models"
)

// Names of the custom predicates every engine registers
const (
	PredicateLargeRedemption  = "large_redemption"
	PredicateVeryLate         = "very_late"
	PredicateLowRating        = "low_rating"
	PredicateWeekendMissed    = "weekend_missed"
	PredicateLongStreakBroken = "long_streak_broken"
)

// BuiltinPredicates returns the stock custom conditions
func BuiltinPredicates() map[string]Predicate {
	return map[string]Predicate{
		PredicateLargeRedemption: func(e models.Event) bool {
			return e.XPSpent() >= 100
		},
		PredicateVeryLate: func(e models.Event) bool {
			return e.HoursLate() >= 24
		},
		PredicateLowRating: func(e models.Event) bool {
			return e.ParentRating() <= 2
		},
		PredicateWeekendMissed: func(e models.Event) bool {
			if e.Kind != models.EventDeadlineMissed || e.Missed == nil {
				return false
			}
			day := e.Missed.DueAt.Weekday()
			return day == time.Saturday || day == time.Sunday
		},
		PredicateLongStreakBroken: func(e models.Event) bool {
			return e.Kind == models.EventStreakBroken && e.StreakLength() >= 7
		},
	}
}

// HasPredicate reports whether a custom predicate is registered under name
func (e *Evaluator) HasPredicate(name string) bool {
	_, ok := e.predicates[name]
	return ok
}
