package models

import "time"

// StreakTypeDaily is the only streak type currently tracked
const StreakTypeDaily = "daily"

// Streak counts consecutive calendar days of activity for one child
type Streak struct {
	ChildID          string     `json:"child_id"`
	FamilyID         string     `json:"family_id"`
	Type             string     `json:"type"`
	CurrentLength    int        `json:"current_length"`
	LongestLength    int        `json:"longest_length"`
	StartDate        time.Time  `json:"start_date"`
	LastActivityDate time.Time  `json:"last_activity_date"`
	TotalActiveDays  int        `json:"total_active_days"`
	Broken           bool       `json:"broken"`
	BrokenDate       *time.Time `json:"broken_date,omitempty"`
	Version          int        `json:"-"`
}
