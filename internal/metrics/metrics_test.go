package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("")
	if c == nil || c.registry == nil {
		t.Fatal("NewCollector returned no registry")
	}
}

func TestCollector_RecordSweep(t *testing.T) {
	c := NewCollector("test")

	c.RecordSweep("penalty_sweep", 2*time.Second, 5, 3, 1, nil)
	c.RecordSweep("penalty_sweep", time.Second, 1, 0, 1, errors.New("boom"))

	if got := testutil.ToFloat64(c.sweepRuns.WithLabelValues("penalty_sweep", "success")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sweepRuns.WithLabelValues("penalty_sweep", "error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sweepItems.WithLabelValues("penalty_sweep", "failed")); got != 2 {
		t.Errorf("failed items = %v, want 2", got)
	}
}

func TestCollector_NilIsNoOp(t *testing.T) {
	var c *Collector

	// Should not panic
	c.RecordSweep("streak_sweep", time.Second, 1, 1, 0, nil)
	c.RecordEvent("quest_completed", nil)
	c.RecordPenalty("applied")
	c.RecordReport("daily", nil)
	c.RecordRetryExhausted()
	c.RecordRequest("/api/rules", http.StatusOK, time.Millisecond)
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.RecordPenalty("applied")
	c.RecordEvent("quest_completed", nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`test_penalties_transitions_total{transition="applied"} 1`,
		`test_events_handled_total{kind="quest_completed",result="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
