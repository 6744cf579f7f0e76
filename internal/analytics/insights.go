package analytics

import (
	"fmt"

	"kiddoquest/internal/models"
)

// Insight types
const (
	InsightLowActivity        = "low_activity"
	InsightHighActivity       = "high_activity"
	InsightRewardVariety      = "reward_variety"
	InsightInconsistent       = "inconsistent_activity"
	InsightCategoryPreference = "category_preference"
	InsightPenaltyTrend       = "penalty_trend"
)

// Thresholds configure when insights fire
type Thresholds struct {
	HighActivityDaily        int     `yaml:"high_activity_daily"`
	HighActivityDailyAverage float64 `yaml:"high_activity_daily_average"`
	RewardVarietyRatio       float64 `yaml:"reward_variety_ratio"`
	InconsistencyStdDev      float64 `yaml:"inconsistency_std_dev"`
	PenaltyWarning           int     `yaml:"penalty_warning"`
}

// DefaultThresholds returns the standard insight thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighActivityDaily:        5,
		HighActivityDailyAverage: 3,
		RewardVarietyRatio:       3,
		InconsistencyStdDev:      2,
		PenaltyWarning:           3,
	}
}

// GenerateInsights applies the threshold rules in order. Metrics covering more
// than one day are judged on daily averages and consistency.
func GenerateInsights(m models.Metrics, th Thresholds) []models.Insight {
	insights := []models.Insight{}
	multiDay := m.Days > 1
	period := "today"
	if multiDay {
		period = "this week"
		if m.Days != 7 {
			period = fmt.Sprintf("over these %d days", m.Days)
		}
	}

	if m.QuestsCompleted == 0 {
		insights = append(insights, models.Insight{
			Type:     InsightLowActivity,
			Message:  fmt.Sprintf("No quests were completed %s. A fresh quest or a small reward could help restart momentum.", period),
			Priority: models.PriorityHigh,
		})
	} else if !multiDay && m.QuestsCompleted >= th.HighActivityDaily {
		insights = append(insights, models.Insight{
			Type:     InsightHighActivity,
			Message:  fmt.Sprintf("Great day! %d quests were completed.", m.QuestsCompleted),
			Priority: models.PriorityMedium,
		})
	} else if multiDay && m.AverageDailyCompletions >= th.HighActivityDailyAverage {
		insights = append(insights, models.Insight{
			Type:     InsightHighActivity,
			Message:  fmt.Sprintf("Great work! The family averaged %.1f quests per day %s.", m.AverageDailyCompletions, period),
			Priority: models.PriorityMedium,
		})
	}

	if m.XPEarned > 0 && float64(m.XPEarned) > th.RewardVarietyRatio*float64(m.XPSpent) {
		insights = append(insights, models.Insight{
			Type:     InsightRewardVariety,
			Message:  fmt.Sprintf("%d XP was earned but only %d spent. Adding more reward variety could keep motivation high.", m.XPEarned, m.XPSpent),
			Priority: models.PriorityMedium,
		})
	}

	if multiDay && m.ConsistencyStdDev > th.InconsistencyStdDev {
		insights = append(insights, models.Insight{
			Type:     InsightInconsistent,
			Message:  fmt.Sprintf("Daily activity swung a lot (standard deviation %.1f quests). A regular routine can help build streaks.", m.ConsistencyStdDev),
			Priority: models.PriorityMedium,
		})
	}

	if m.MostPopularCategory != "" {
		insights = append(insights, models.Insight{
			Type:     InsightCategoryPreference,
			Message:  fmt.Sprintf("%q was the most popular quest category %s.", m.MostPopularCategory, period),
			Priority: models.PriorityLow,
		})
	}

	if th.PenaltyWarning > 0 && m.PenaltiesApplied >= th.PenaltyWarning {
		insights = append(insights, models.Insight{
			Type:     InsightPenaltyTrend,
			Message:  fmt.Sprintf("%d penalties were applied %s. It may be worth reviewing the rules together.", m.PenaltiesApplied, period),
			Priority: models.PriorityHigh,
		})
	}

	return insights
}
