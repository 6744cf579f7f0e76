package models

import "time"

// Report types
const (
	ReportDaily  = "daily"
	ReportWeekly = "weekly"
	ReportCustom = "custom"
)

// Insight priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Insight is a generated observation about a family's activity
type Insight struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// DayStat is one day in a multi-day report
type DayStat struct {
	Date            string `json:"date"` // YYYY-MM-DD in the family timezone
	QuestsCompleted int    `json:"quests_completed"`
	XPEarned        int    `json:"xp_earned"`
}

// Metrics are the aggregates computed over a report window
type Metrics struct {
	QuestsCompleted          int            `json:"quests_completed"`
	XPEarned                 int            `json:"xp_earned"`
	RewardsRedeemed          int            `json:"rewards_redeemed"`
	XPSpent                  int            `json:"xp_spent"`
	PenaltiesApplied         int            `json:"penalties_applied"`
	TimedCompletions         int            `json:"timed_completions"`
	AverageCompletionMinutes float64        `json:"average_completion_minutes"`
	CategoryCounts           map[string]int `json:"category_counts,omitempty"`
	MostPopularCategory      string         `json:"most_popular_category,omitempty"`
	ChildCompletions         map[string]int `json:"child_completions,omitempty"`
	MostActiveChild          string         `json:"most_active_child,omitempty"`
	Days                     int            `json:"days"`
	DailyBreakdown           []DayStat      `json:"daily_breakdown,omitempty"`
	MostProductiveDay        string         `json:"most_productive_day,omitempty"`
	AverageDailyCompletions  float64        `json:"average_daily_completions"`
	ConsistencyStdDev        float64        `json:"consistency_std_dev"`
}

// AnalyticsReport is an immutable snapshot; it is never updated once stored
type AnalyticsReport struct {
	ID            string          `json:"id"`
	FamilyID      string          `json:"family_id"`
	ReportType    string          `json:"report_type"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	Metrics       Metrics         `json:"metrics"`
	Insights      []Insight       `json:"insights"`
	ChildProfiles []ChildSnapshot `json:"child_profiles"`
	GeneratedAt   time.Time       `json:"generated_at"`
	GeneratedBy   string          `json:"generated_by"`
}

// DailyCounters are the real-time counters kept per family and day
type DailyCounters struct {
	FamilyID         string `json:"family_id"`
	Date             string `json:"date"`
	QuestsCompleted  int64  `json:"quests_completed"`
	XPEarned         int64  `json:"xp_earned"`
	RewardsRedeemed  int64  `json:"rewards_redeemed"`
	XPSpent          int64  `json:"xp_spent"`
	PenaltiesApplied int64  `json:"penalties_applied"`
}

// Counter names used with atomic increments
const (
	CounterQuestsCompleted  = "quests_completed"
	CounterXPEarned         = "xp_earned"
	CounterRewardsRedeemed  = "rewards_redeemed"
	CounterXPSpent          = "xp_spent"
	CounterPenaltiesApplied = "penalties_applied"
)

// CounterNames lists every counter column
var CounterNames = []string{
	CounterQuestsCompleted,
	CounterXPEarned,
	CounterRewardsRedeemed,
	CounterXPSpent,
	CounterPenaltiesApplied,
}

// SystemLog is an audit record summarizing a scheduled run
type SystemLog struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Processed int       `json:"processed"`
	Applied   int       `json:"applied"`
	Failed    int       `json:"failed"`
	Details   string    `json:"details,omitempty"`
	StartedAt time.Time `json:"started_at"`
	CreatedAt time.Time `json:"created_at"`
}
