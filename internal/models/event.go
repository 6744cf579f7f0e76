package models

import "time"

// EventKind discriminates the payload carried by an Event
type EventKind string

const (
	EventQuestCompleted  EventKind = "quest_completed"
	EventRewardRedeemed  EventKind = "reward_redeemed"
	EventDeadlineMissed  EventKind = "deadline_missed"
	EventBehaviorFlagged EventKind = "behavior_flagged"
	EventStreakBroken    EventKind = "streak_broken"
)

// Defaults assumed when an optional event field is absent. They are the
// favorable values, so a missing field never pushes a child into a penalty.
const (
	DefaultHoursLate    = 0
	DefaultStreakLength = 0
	DefaultParentRating = 5
)

// Event is an immutable record of something a child did. Exactly one payload
// pointer is set, selected by Kind.
type Event struct {
	ID         string    `json:"id"`
	FamilyID   string    `json:"family_id"`
	ChildID    string    `json:"child_id"`
	Kind       EventKind `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	Quest      *QuestCompletionEvent `json:"quest,omitempty"`
	Redemption *RedemptionEvent      `json:"redemption,omitempty"`
	Missed     *MissedDeadlineEvent  `json:"missed,omitempty"`
	Behavior   *BehaviorFlagEvent    `json:"behavior,omitempty"`
	Streak     *StreakBreakEvent     `json:"streak,omitempty"`
}

// QuestCompletionEvent is emitted when a child finishes a quest
type QuestCompletionEvent struct {
	QuestID    string   `json:"quest_id"`
	Title      string   `json:"title,omitempty"`
	Category   string   `json:"category,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	XPEarned   int      `json:"xp_earned"`
	HoursLate  *float64 `json:"hours_late,omitempty"`
	// DurationMinutes is how long the quest took, when the client reports it.
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	ParentRating    *float64 `json:"parent_rating,omitempty"`
	StreakLength    *int     `json:"streak_length,omitempty"`
}

// RedemptionEvent is emitted when a child spends XP on a reward
type RedemptionEvent struct {
	RewardID string `json:"reward_id"`
	Title    string `json:"title,omitempty"`
	XPSpent  int    `json:"xp_spent"`
}

// MissedDeadlineEvent is emitted by the daily sweep for overdue quests
type MissedDeadlineEvent struct {
	QuestID    string    `json:"quest_id"`
	Title      string    `json:"title,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	DueAt      time.Time `json:"due_at"`
}

// BehaviorFlagEvent is raised by a parent to record behavior
type BehaviorFlagEvent struct {
	// Violation marks a broken house rule rather than a general behavior issue.
	Violation   bool     `json:"violation"`
	Description string   `json:"description,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	FlaggedBy   string   `json:"flagged_by,omitempty"`
}

// StreakBreakEvent is emitted when a streak is found broken
type StreakBreakEvent struct {
	PreviousLength int `json:"previous_length"`
}

// Triggers returns the rule triggers this event can fire
func (e Event) Triggers() []Trigger {
	switch e.Kind {
	case EventDeadlineMissed:
		return []Trigger{TriggerMissedQuest, TriggerCustom}
	case EventQuestCompleted:
		triggers := []Trigger{TriggerCustom}
		if e.HoursLate() > 0 {
			triggers = append(triggers, TriggerLateCompletion)
		}
		if e.Quest != nil && e.Quest.ParentRating != nil {
			triggers = append(triggers, TriggerPoorQuality)
		}
		return triggers
	case EventBehaviorFlagged:
		if e.Behavior != nil && e.Behavior.Violation {
			return []Trigger{TriggerRuleViolation, TriggerCustom}
		}
		return []Trigger{TriggerBehavioralIssue, TriggerCustom}
	case EventStreakBroken:
		return []Trigger{TriggerStreakBreak, TriggerCustom}
	case EventRewardRedeemed:
		return []Trigger{TriggerCustom}
	}
	return nil
}

// QuestDifficulty returns the difficulty of the quest the event refers to
func (e Event) QuestDifficulty() string {
	switch e.Kind {
	case EventQuestCompleted:
		if e.Quest != nil {
			return e.Quest.Difficulty
		}
	case EventDeadlineMissed:
		if e.Missed != nil {
			return e.Missed.Difficulty
		}
	}
	return ""
}

// HoursLate returns how late a completion was, defaulting to 0
func (e Event) HoursLate() float64 {
	if e.Kind == EventQuestCompleted && e.Quest != nil && e.Quest.HoursLate != nil {
		return *e.Quest.HoursLate
	}
	if e.Kind == EventDeadlineMissed && e.Missed != nil && !e.Missed.DueAt.IsZero() {
		late := e.OccurredAt.Sub(e.Missed.DueAt).Hours()
		if late > 0 {
			return late
		}
	}
	return DefaultHoursLate
}

// StreakLength returns the streak length carried by the event, defaulting to 0
func (e Event) StreakLength() float64 {
	switch e.Kind {
	case EventStreakBroken:
		if e.Streak != nil {
			return float64(e.Streak.PreviousLength)
		}
	case EventQuestCompleted:
		if e.Quest != nil && e.Quest.StreakLength != nil {
			return float64(*e.Quest.StreakLength)
		}
	}
	return DefaultStreakLength
}

// ParentRating returns the parent's rating, defaulting to 5
func (e Event) ParentRating() float64 {
	switch e.Kind {
	case EventQuestCompleted:
		if e.Quest != nil && e.Quest.ParentRating != nil {
			return *e.Quest.ParentRating
		}
	case EventBehaviorFlagged:
		if e.Behavior != nil && e.Behavior.Rating != nil {
			return *e.Behavior.Rating
		}
	}
	return DefaultParentRating
}

// XPEarned returns XP gained from a quest completion
func (e Event) XPEarned() int {
	if e.Kind == EventQuestCompleted && e.Quest != nil {
		return e.Quest.XPEarned
	}
	return 0
}

// XPSpent returns XP spent on a redemption
func (e Event) XPSpent() int {
	if e.Kind == EventRewardRedeemed && e.Redemption != nil {
		return e.Redemption.XPSpent
	}
	return 0
}

// Category returns the quest category of a completion
func (e Event) Category() string {
	if e.Kind == EventQuestCompleted && e.Quest != nil {
		return e.Quest.Category
	}
	return ""
}

// Validate checks the discriminant matches the payload
func (e Event) Validate() bool {
	if e.ChildID == "" || e.FamilyID == "" {
		return false
	}
	switch e.Kind {
	case EventQuestCompleted:
		return e.Quest != nil
	case EventRewardRedeemed:
		return e.Redemption != nil
	case EventDeadlineMissed:
		return e.Missed != nil
	case EventBehaviorFlagged:
		return e.Behavior != nil
	case EventStreakBroken:
		return e.Streak != nil
	}
	return false
}
