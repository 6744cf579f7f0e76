package streaks

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"kiddoquest/internal/models"
)

func day(d, hour int) time.Time {
	return time.Date(2024, 5, d, hour, 0, 0, 0, time.UTC)
}

func TestAdvanceScenario(t *testing.T) {
	s, tr := Advance(nil, "child-1", "fam-1", day(1, 9), time.UTC)
	if tr != Started || s.CurrentLength != 1 || s.TotalActiveDays != 1 || s.Broken {
		t.Fatalf("day 1: got %+v (%s)", s, tr)
	}

	s, tr = Advance(&s, "child-1", "fam-1", day(2, 18), time.UTC)
	if tr != Extended || s.CurrentLength != 2 || s.Broken {
		t.Fatalf("day 2: got %+v (%s)", s, tr)
	}

	s, tr = Advance(&s, "child-1", "fam-1", day(4, 8), time.UTC)
	if tr != Reset {
		t.Fatalf("day 4: transition = %s, want reset", tr)
	}
	if s.CurrentLength != 1 || !s.Broken {
		t.Errorf("day 4: CurrentLength = %d, Broken = %v; want 1, true", s.CurrentLength, s.Broken)
	}
	if s.BrokenDate == nil || !s.BrokenDate.Equal(day(4, 8)) {
		t.Errorf("day 4: BrokenDate = %v", s.BrokenDate)
	}
	if s.TotalActiveDays != 3 {
		t.Errorf("TotalActiveDays = %d, want 3", s.TotalActiveDays)
	}
	if s.LongestLength != 2 {
		t.Errorf("LongestLength = %d, want 2", s.LongestLength)
	}
}

func TestAdvanceSameDayIsIdempotent(t *testing.T) {
	s, _ := Advance(nil, "c", "f", day(1, 7), time.UTC)
	s, _ = Advance(&s, "c", "f", day(2, 7), time.UTC)

	for hour := 8; hour < 23; hour++ {
		next, tr := Advance(&s, "c", "f", day(2, hour), time.UTC)
		if tr != SameDay {
			t.Fatalf("hour %d: transition = %s", hour, tr)
		}
		if next.CurrentLength != s.CurrentLength || next.TotalActiveDays != s.TotalActiveDays {
			t.Fatalf("hour %d: same-day event changed counters", hour)
		}
		s = next
	}
	if !s.LastActivityDate.Equal(day(2, 22)) {
		t.Errorf("LastActivityDate = %v", s.LastActivityDate)
	}
}

func TestAdvanceUsesFamilyTimezone(t *testing.T) {
	// UTC-5: 03:00Z on the 2nd is still the evening of the 1st locally.
	loc := time.FixedZone("EST", -5*60*60)
	s, _ := Advance(nil, "c", "f", time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC), loc)
	next, tr := Advance(&s, "c", "f", time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), loc)
	if tr != SameDay || next.CurrentLength != 1 {
		t.Errorf("got %s with length %d, want same_day with length 1", tr, next.CurrentLength)
	}

	next, tr = Advance(&s, "c", "f", time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), time.UTC)
	if tr != Extended {
		t.Errorf("in UTC got %s, want extended", tr)
	}
}

func TestAdvanceOutOfOrderEvent(t *testing.T) {
	s, _ := Advance(nil, "c", "f", day(5, 10), time.UTC)
	next, tr := Advance(&s, "c", "f", day(3, 10), time.UTC)
	if tr != OutOfOrder {
		t.Fatalf("transition = %s, want out_of_order", tr)
	}
	if next.CurrentLength != 1 || !next.LastActivityDate.Equal(day(5, 10)) {
		t.Errorf("out-of-order event modified streak: %+v", next)
	}
}

func TestAdvanceDoesNotMutatePrevious(t *testing.T) {
	brokenAt := day(1, 1)
	prev := models.Streak{CurrentLength: 3, LastActivityDate: day(1, 9), Broken: true, BrokenDate: &brokenAt}
	_, _ = Advance(&prev, "c", "f", day(5, 9), time.UTC)
	if prev.CurrentLength != 3 || !prev.BrokenDate.Equal(day(1, 1)) {
		t.Errorf("previous streak modified: %+v", prev)
	}
}

func TestStreakProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("consecutive days strictly increment and never break", prop.ForAll(
		func(days int, startLen int) bool {
			s := models.Streak{CurrentLength: startLen, LastActivityDate: day(1, 12)}
			for i := 1; i <= days; i++ {
				next, tr := Advance(&s, "c", "f", s.LastActivityDate.Add(24*time.Hour), time.UTC)
				if tr != Extended || next.CurrentLength != s.CurrentLength+1 || next.Broken {
					return false
				}
				s = next
			}
			return true
		},
		gen.IntRange(1, 60),
		gen.IntRange(1, 100),
	))

	properties.Property("a gap of more than one day resets to 1 and breaks", prop.ForAll(
		func(gap int, startLen int) bool {
			s := models.Streak{CurrentLength: startLen, LastActivityDate: day(1, 12)}
			next, _ := Advance(&s, "c", "f", day(1, 12).AddDate(0, 0, gap), time.UTC)
			return next.CurrentLength == 1 && next.Broken
		},
		gen.IntRange(2, 365),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}

func TestIsStale(t *testing.T) {
	now := day(10, 12)
	tests := []struct {
		name   string
		streak models.Streak
		want   bool
	}{
		{"recent", models.Streak{LastActivityDate: now.Add(-23 * time.Hour)}, false},
		{"over a day", models.Streak{LastActivityDate: now.Add(-25 * time.Hour)}, true},
		{"already broken", models.Streak{LastActivityDate: now.Add(-72 * time.Hour), Broken: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStale(tt.streak, now, 24*time.Hour); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkBroken(t *testing.T) {
	s := models.Streak{CurrentLength: 4}
	out := MarkBroken(s, day(3, 0))
	if !out.Broken || out.BrokenDate == nil || out.CurrentLength != 4 {
		t.Errorf("MarkBroken() = %+v", out)
	}
	if s.Broken {
		t.Error("MarkBroken modified its input")
	}
}
