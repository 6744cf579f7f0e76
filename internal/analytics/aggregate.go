// Package analytics turns raw event logs into report metrics and insights.
// It performs no I/O.
package analytics

import (
	"math"
	"time"

	"kiddoquest/internal/models"
)

// DateLayout is the layout of DayStat.Date
const DateLayout = "2006-01-02"

// Window is a half-open time range [Start, End) evaluated in Location
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// DayWindow returns the calendar day containing t in loc
func DayWindow(t time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1), Location: loc}
}

// WeekWindow returns the seven calendar days starting on the day containing start
func WeekWindow(start time.Time, loc *time.Location) Window {
	w := DayWindow(start, loc)
	w.End = w.Start.AddDate(0, 0, 7)
	return w
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// Days returns the calendar dates covered by the window, in order
func (w Window) Days() []string {
	var days []string
	loc := w.loc()
	y, m, d := w.Start.In(loc).Date()
	for cur := time.Date(y, m, d, 0, 0, 0, 0, loc); cur.Before(w.End); cur = cur.AddDate(0, 0, 1) {
		days = append(days, cur.Format(DateLayout))
	}
	return days
}

// counter tallies keys and remembers first-seen order so that ties resolve
// the same way on every run.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string, n int) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// max returns the key with the highest count; the first-seen key wins a tie.
func (c *counter) max() string {
	best, bestCount := "", 0
	for _, key := range c.order {
		if n := c.counts[key]; n > bestCount {
			best, bestCount = key, n
		}
	}
	return best
}

// AggregateDaily computes metrics for a single-day window
func AggregateDaily(events []models.Event, w Window) models.Metrics {
	m, _ := aggregate(events, w)
	m.Days = 1
	m.AverageDailyCompletions = float64(m.QuestsCompleted)
	return m
}

// AggregateWeekly computes metrics with a per-day breakdown and consistency
func AggregateWeekly(events []models.Event, w Window) models.Metrics {
	return AggregateRange(events, w)
}

// AggregateRange computes multi-day metrics for any window
func AggregateRange(events []models.Event, w Window) models.Metrics {
	m, perDay := aggregate(events, w)

	days := w.Days()
	m.Days = len(days)
	m.DailyBreakdown = make([]models.DayStat, 0, len(days))
	counts := make([]float64, 0, len(days))
	best := -1
	for _, date := range days {
		stat := models.DayStat{Date: date}
		if s, ok := perDay[date]; ok {
			stat = *s
		}
		m.DailyBreakdown = append(m.DailyBreakdown, stat)
		counts = append(counts, float64(stat.QuestsCompleted))
		if stat.QuestsCompleted > best {
			best = stat.QuestsCompleted
			m.MostProductiveDay = date
		}
	}
	if best <= 0 {
		m.MostProductiveDay = ""
	}

	if m.Days > 0 {
		m.AverageDailyCompletions = float64(m.QuestsCompleted) / float64(m.Days)
	}
	m.ConsistencyStdDev = StdDev(counts)
	return m
}

func aggregate(events []models.Event, w Window) (models.Metrics, map[string]*models.DayStat) {
	var m models.Metrics
	categories := newCounter()
	children := newCounter()
	perDay := make(map[string]*models.DayStat)
	var totalMinutes float64

	for _, e := range events {
		if !w.Contains(e.OccurredAt) {
			continue
		}
		switch e.Kind {
		case models.EventQuestCompleted:
			if e.Quest == nil {
				continue
			}
			m.QuestsCompleted++
			m.XPEarned += e.Quest.XPEarned
			if e.Quest.DurationMinutes != nil {
				m.TimedCompletions++
				totalMinutes += *e.Quest.DurationMinutes
			}
			if e.Quest.Category != "" {
				categories.add(e.Quest.Category, 1)
			}
			children.add(e.ChildID, 1)

			date := e.OccurredAt.In(w.loc()).Format(DateLayout)
			stat, ok := perDay[date]
			if !ok {
				stat = &models.DayStat{Date: date}
				perDay[date] = stat
			}
			stat.QuestsCompleted++
			stat.XPEarned += e.Quest.XPEarned
		case models.EventRewardRedeemed:
			if e.Redemption == nil {
				continue
			}
			m.RewardsRedeemed++
			m.XPSpent += e.Redemption.XPSpent
		}
	}

	if m.TimedCompletions > 0 {
		m.AverageCompletionMinutes = totalMinutes / float64(m.TimedCompletions)
	}
	if len(categories.order) > 0 {
		m.CategoryCounts = categories.counts
		m.MostPopularCategory = categories.max()
	}
	if len(children.order) > 0 {
		m.ChildCompletions = children.counts
		m.MostActiveChild = children.max()
	}
	return m, perDay
}

// StdDev returns the population standard deviation of values
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
