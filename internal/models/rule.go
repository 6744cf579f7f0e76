package models

import "time"

// Trigger names the kind of behavior a penalty rule reacts to
type Trigger string

const (
	TriggerMissedQuest     Trigger = "missed_quest"
	TriggerLateCompletion  Trigger = "late_completion"
	TriggerPoorQuality     Trigger = "poor_quality"
	TriggerBehavioralIssue Trigger = "behavioral_issue"
	TriggerRuleViolation   Trigger = "rule_violation"
	TriggerStreakBreak     Trigger = "streak_break"
	TriggerCustom          Trigger = "custom"
)

// Triggers lists every known trigger
var Triggers = []Trigger{
	TriggerMissedQuest,
	TriggerLateCompletion,
	TriggerPoorQuality,
	TriggerBehavioralIssue,
	TriggerRuleViolation,
	TriggerStreakBreak,
	TriggerCustom,
}

// IsValid reports whether t is a known trigger
func (t Trigger) IsValid() bool {
	for _, known := range Triggers {
		if t == known {
			return true
		}
	}
	return false
}

// Severity is a rule's tier; each tier maps to a numeric multiplier
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeveritySevere   Severity = "severe"
)

// Range bounds a numeric event field. A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v lies within the inclusive bounds
func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// RuleConditions are ANDed together; an unset field means "no constraint"
type RuleConditions struct {
	QuestDifficulty string `json:"quest_difficulty,omitempty"`
	HoursLate       *Range `json:"hours_late,omitempty"`
	StreakLength    *Range `json:"streak_length,omitempty"`
	ParentRating    *Range `json:"parent_rating,omitempty"`
	// Custom names a predicate registered with the evaluator.
	Custom string `json:"custom,omitempty"`
}

// Consequences describes the effects a rule imposes
type Consequences struct {
	XPDeduction             int      `json:"xp_deduction,omitempty"`
	XPPercentage            int      `json:"xp_percentage,omitempty"`
	StreakBreak             bool     `json:"streak_break,omitempty"`
	CooldownHours           int      `json:"cooldown_hours,omitempty"`
	RestrictedRewards       []string `json:"restricted_rewards,omitempty"`
	RestrictedQuests        []string `json:"restricted_quests,omitempty"`
	PrivilegeLoss           []string `json:"privilege_loss,omitempty"`
	RemedialQuestTemplateID string   `json:"remedial_quest_template_id,omitempty"`
}

// IsEmpty reports whether the consequences have no effect at all
func (c Consequences) IsEmpty() bool {
	return c.XPDeduction == 0 &&
		c.XPPercentage == 0 &&
		!c.StreakBreak &&
		c.CooldownHours == 0 &&
		len(c.RestrictedRewards) == 0 &&
		len(c.RestrictedQuests) == 0 &&
		len(c.PrivilegeLoss) == 0 &&
		c.RemedialQuestTemplateID == ""
}

// Clone returns a deep copy so callers can scale values without aliasing lists
func (c Consequences) Clone() Consequences {
	out := c
	out.RestrictedRewards = append([]string(nil), c.RestrictedRewards...)
	out.RestrictedQuests = append([]string(nil), c.RestrictedQuests...)
	out.PrivilegeLoss = append([]string(nil), c.PrivilegeLoss...)
	return out
}

// Escalation selects harsher consequences for repeat offenses
type Escalation struct {
	FirstOffense       *Consequences `json:"first_offense,omitempty"`
	SecondOffense      *Consequences `json:"second_offense,omitempty"`
	ThirdOffense       *Consequences `json:"third_offense,omitempty"`
	FourthOffense      *Consequences `json:"fourth_offense,omitempty"`
	SubsequentOffenses *Consequences `json:"subsequent_offenses,omitempty"`
	ResetPeriodHours   int           `json:"reset_period_hours,omitempty"`
}

// PenaltyRule is a family-configured rule. Rules are never deleted; IsActive
// soft-disables them.
type PenaltyRule struct {
	ID           string         `json:"id"`
	FamilyID     string         `json:"family_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Trigger      Trigger        `json:"trigger"`
	Severity     Severity       `json:"severity"`
	Conditions   RuleConditions `json:"conditions"`
	Consequences Consequences   `json:"consequences"`
	Escalation   *Escalation    `json:"escalation,omitempty"`
	IsActive     bool           `json:"is_active"`
	AutoApply    bool           `json:"auto_apply"`
	Appealable   bool           `json:"appealable"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
