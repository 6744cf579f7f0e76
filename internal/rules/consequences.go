package rules

import (
	"fmt"
	"math"
	"time"

	"kiddoquest/internal/models"
)

// SeverityTable maps each severity to the multiplier applied to numeric
// consequences. Treat values as immutable once handed to a Calculator.
type SeverityTable map[models.Severity]float64

// DefaultSeverityTable returns the standard multipliers
func DefaultSeverityTable() SeverityTable {
	return SeverityTable{
		models.SeverityMinor:    1.0,
		models.SeverityModerate: 1.5,
		models.SeverityMajor:    2.0,
		models.SeveritySevere:   3.0,
	}
}

// Calculator turns a rule's declared consequences into concrete ones
type Calculator struct {
	multipliers SeverityTable
}

// NewCalculator copies the table so later edits by the caller have no effect
func NewCalculator(table SeverityTable) (*Calculator, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("severity table is empty")
	}
	copied := make(SeverityTable, len(table))
	for severity, multiplier := range table {
		if multiplier <= 0 {
			return nil, fmt.Errorf("severity %q has non-positive multiplier %v", severity, multiplier)
		}
		copied[severity] = multiplier
	}
	return &Calculator{multipliers: copied}, nil
}

// Multiplier returns the multiplier for a severity
func (c *Calculator) Multiplier(s models.Severity) (float64, bool) {
	m, ok := c.multipliers[s]
	return m, ok
}

// Calculate returns the consequence to enforce. offenseCount is the child's
// offense number for this rule within its reset window, including the current
// one; it only matters for escalating rules.
func (c *Calculator) Calculate(rule models.PenaltyRule, offenseCount int) (models.Consequences, error) {
	multiplier, ok := c.multipliers[rule.Severity]
	if !ok {
		return models.Consequences{}, &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", rule.Severity)}
	}

	base := rule.Consequences
	if rule.Escalation != nil {
		if tier := SelectTier(rule.Escalation, offenseCount); tier != nil {
			base = *tier
		}
	}

	out := base.Clone()
	out.XPDeduction = scale(base.XPDeduction, multiplier)
	out.CooldownHours = scale(base.CooldownHours, multiplier)
	return out, nil
}

func scale(v int, multiplier float64) int {
	return int(math.Floor(float64(v) * multiplier))
}

// SelectTier picks the escalation tier for an offense count. A missing tier
// falls back to the nearest lower tier that is defined; nil means none is.
func SelectTier(esc *models.Escalation, offenseCount int) *models.Consequences {
	tiers := []*models.Consequences{
		esc.FirstOffense,
		esc.SecondOffense,
		esc.ThirdOffense,
		esc.FourthOffense,
		esc.SubsequentOffenses,
	}

	idx := offenseCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(tiers) {
		idx = len(tiers) - 1
	}

	for i := idx; i >= 0; i-- {
		if tiers[i] != nil {
			return tiers[i]
		}
	}
	return nil
}

// ShouldReset reports whether an offense counter has aged out of the rule's
// reset window. Rules without a reset period never reset.
func ShouldReset(esc *models.Escalation, lastOffense, now time.Time) bool {
	if esc == nil || esc.ResetPeriodHours <= 0 || lastOffense.IsZero() {
		return false
	}
	return now.Sub(lastOffense) > time.Duration(esc.ResetPeriodHours)*time.Hour
}

// NextOffenseCount returns the offense number for a new offense given the
// stored counter state.
func NextOffenseCount(esc *models.Escalation, count int, lastOffense, now time.Time) int {
	if ShouldReset(esc, lastOffense, now) {
		return 1
	}
	return count + 1
}
