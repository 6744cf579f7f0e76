// Package streaks implements the per-child daily streak state machine.
//
// Day continuity is measured in calendar days of the family's timezone, so
// a child active at 23:30 and again at 00:15 local time extends the streak
// no matter where the server runs.
package streaks

import (
	"time"

	"kiddoquest/internal/models"
)

// Transition describes what an activity did to a streak
type Transition string

const (
	Started    Transition = "started"
	SameDay    Transition = "same_day"
	Extended   Transition = "extended"
	Reset      Transition = "reset"
	OutOfOrder Transition = "out_of_order"
)

// DaysBetween returns the number of calendar days from a to b in loc
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	// Noon UTC sidesteps DST-shortened days when subtracting.
	da := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Advance applies an activity at t to prev. prev is nil when the child has no
// streak yet. The returned streak is a new value; prev is not modified.
func Advance(prev *models.Streak, childID, familyID string, t time.Time, loc *time.Location) (models.Streak, Transition) {
	if prev == nil {
		return models.Streak{
			ChildID:          childID,
			FamilyID:         familyID,
			Type:             models.StreakTypeDaily,
			CurrentLength:    1,
			LongestLength:    1,
			StartDate:        t,
			LastActivityDate: t,
			TotalActiveDays:  1,
		}, Started
	}

	next := *prev
	if next.BrokenDate != nil {
		bd := *next.BrokenDate
		next.BrokenDate = &bd
	}

	days := DaysBetween(prev.LastActivityDate, t, loc)
	switch {
	case days < 0:
		// A late-delivered event for an earlier day never rewinds the streak.
		return next, OutOfOrder
	case days == 0:
		if t.After(next.LastActivityDate) {
			next.LastActivityDate = t
		}
		return next, SameDay
	case days == 1:
		next.CurrentLength++
		next.TotalActiveDays++
		next.LastActivityDate = t
		next.Broken = false
		if next.CurrentLength > next.LongestLength {
			next.LongestLength = next.CurrentLength
		}
		return next, Extended
	default:
		brokenAt := t
		next.CurrentLength = 1
		next.Broken = true
		next.BrokenDate = &brokenAt
		next.StartDate = t
		next.TotalActiveDays++
		next.LastActivityDate = t
		if next.LongestLength < 1 {
			next.LongestLength = 1
		}
		return next, Reset
	}
}

// IsStale reports whether the sweep at now should flag s as broken: its last
// activity is more than after in the past and it is not already broken.
func IsStale(s models.Streak, now time.Time, after time.Duration) bool {
	if s.Broken {
		return false
	}
	return now.Sub(s.LastActivityDate) > after
}

// MarkBroken returns s flagged as broken at now. The length is kept so the
// break can be reported; the next activity starts a new period.
func MarkBroken(s models.Streak, now time.Time) models.Streak {
	out := s
	brokenAt := now
	out.Broken = true
	out.BrokenDate = &brokenAt
	return out
}
