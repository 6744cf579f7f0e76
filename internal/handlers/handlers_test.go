package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiddoquest/internal/metrics"
	"kiddoquest/internal/models"
	"kiddoquest/internal/security"
	"kiddoquest/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakePenalties struct {
	lastRule, lastChild string
	lastDecision        models.AppealStatus
}

func (f *fakePenalties) ApplyManual(ctx context.Context, identity models.Identity, ruleID, childID string) (*models.AppliedPenalty, error) {
	if !identity.IsGuardian() {
		return nil, fmt.Errorf("%w: parent or admin role required", service.ErrPermissionDenied)
	}
	f.lastRule, f.lastChild = ruleID, childID
	return &models.AppliedPenalty{ID: "pen-1", RuleID: ruleID, ChildID: childID, Status: models.PenaltyActive}, nil
}

func (f *fakePenalties) Appeal(ctx context.Context, identity models.Identity, penaltyID, reason string) (*models.AppliedPenalty, error) {
	if penaltyID == "closed" {
		return nil, fmt.Errorf("%w: appeal window has closed", service.ErrFailedPrecondition)
	}
	return &models.AppliedPenalty{ID: penaltyID, AppealStatus: models.AppealPending, AppealReason: reason}, nil
}

func (f *fakePenalties) ResolveAppeal(ctx context.Context, identity models.Identity, penaltyID string, decision models.AppealStatus, notes string) (*models.AppliedPenalty, error) {
	f.lastDecision = decision
	return &models.AppliedPenalty{ID: penaltyID, AppealStatus: decision}, nil
}

func (f *fakePenalties) ActiveRestrictions(ctx context.Context, identity models.Identity, childID string) (*models.Restrictions, error) {
	return &models.Restrictions{ChildID: childID, RestrictedRewards: []string{"tablet"}}, nil
}

type fakeReports struct {
	start, end time.Time
}

func (f *fakeReports) GenerateRange(ctx context.Context, identity models.Identity, familyID string, start, end time.Time) (*models.AnalyticsReport, error) {
	f.start, f.end = start, end
	return &models.AnalyticsReport{ID: "rep-1", FamilyID: familyID, ReportType: models.ReportCustom}, nil
}

func (f *fakeReports) FamilyReports(ctx context.Context, identity models.Identity, familyID string, limit int) ([]models.AnalyticsReport, error) {
	if !identity.CanAccess(familyID) {
		return nil, service.ErrPermissionDenied
	}
	return []models.AnalyticsReport{{ID: "rep-1", FamilyID: familyID}}, nil
}

type fakeRules struct{}

func (fakeRules) CreateRule(ctx context.Context, identity models.Identity, rule *models.PenaltyRule) error {
	if rule.Trigger == "" {
		return fmt.Errorf("%w: invalid rule trigger: is required", service.ErrValidation)
	}
	rule.ID = "rule-1"
	return nil
}

func (fakeRules) SetActive(ctx context.Context, identity models.Identity, ruleID string, active bool) error {
	return nil
}

type fakeGoals struct{}

func (fakeGoals) CreateGoal(ctx context.Context, identity models.Identity, goal *models.FamilyGoal) error {
	goal.ID = "goal-1"
	return nil
}

type fakeStreaks struct{}

func (fakeStreaks) FamilyStreaks(ctx context.Context, identity models.Identity, familyID string) ([]models.Streak, error) {
	return []models.Streak{{ChildID: "child-1", CurrentLength: 3}}, nil
}

type fakeExports struct {
	since time.Time
}

func (f *fakeExports) Collect(ctx context.Context, identity models.Identity, familyID string, since time.Time) (*service.FamilyExport, error) {
	if !identity.IsGuardian() {
		return nil, service.ErrPermissionDenied
	}
	f.since = since
	return &service.FamilyExport{Version: "1", Family: models.Family{ID: familyID}}, nil
}

type fakeEvents struct {
	handled []models.Event
}

func (f *fakeEvents) HandleQuestCompleted(ctx context.Context, event models.Event) (*service.EventOutcome, error) {
	f.handled = append(f.handled, event)
	return &service.EventOutcome{EventID: event.ID}, nil
}

func (f *fakeEvents) HandleRewardRedeemed(ctx context.Context, event models.Event) (*service.EventOutcome, error) {
	f.handled = append(f.handled, event)
	return &service.EventOutcome{EventID: event.ID}, nil
}

func (f *fakeEvents) HandleBehaviorFlag(ctx context.Context, identity models.Identity, event models.Event) (*service.EventOutcome, error) {
	if !identity.IsGuardian() && !identity.IsSystem() {
		return nil, service.ErrPermissionDenied
	}
	f.handled = append(f.handled, event)
	return &service.EventOutcome{EventID: event.ID, NeedsReview: true}, nil
}

type testServer struct {
	handler   http.Handler
	verifier  *security.TokenVerifier
	penalties *fakePenalties
	reports   *fakeReports
	exports   *fakeExports
	events    *fakeEvents
}

func newTestServer(t *testing.T, limiter *security.RateLimiter) *testServer {
	t.Helper()
	verifier, err := security.NewTokenVerifier(testSecret, "kiddoquest")
	require.NoError(t, err)

	ts := &testServer{verifier: verifier, penalties: &fakePenalties{}, reports: &fakeReports{}, exports: &fakeExports{}, events: &fakeEvents{}}
	m := metrics.NewCollector("test")
	mw := NewMiddleware(verifier, limiter, nil, m)
	api := NewAPIHandler(ts.penalties, ts.reports, fakeRules{}, fakeGoals{}, fakeStreaks{}, ts.exports, nil)
	ts.handler = NewRouter(api, NewHookHandler(ts.events, nil), mw, m)
	return ts
}

func (ts *testServer) token(t *testing.T, identity models.Identity) string {
	t.Helper()
	token, err := ts.verifier.Issue(identity, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, Result) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var result Result
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	}
	return rec, result
}

var (
	parentID = models.Identity{UserID: "parent-1", FamilyID: "fam-1", Role: models.RoleParent}
	childID  = models.Identity{UserID: "child-1", FamilyID: "fam-1", Role: models.RoleChild}
	systemID = models.Identity{UserID: "backend", Role: models.RoleSystem}
)

func TestRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "GET", "/api/children/child-1/restrictions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthenticated, result.Error.Code)

	rec, _ = ts.do(t, "GET", "/api/children/child-1/restrictions", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, result = ts.do(t, "GET", "/api/children/child-1/restrictions", ts.token(t, parentID), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)
}

func TestApplyPenalty(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "POST", "/api/penalties/apply", ts.token(t, parentID), `{"rule_id":"rule-1","child_id":"child-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)
	assert.Equal(t, "rule-1", ts.penalties.lastRule)
	assert.Equal(t, "child-1", ts.penalties.lastChild)

	rec, result = ts.do(t, "POST", "/api/penalties/apply", ts.token(t, childID), `{"rule_id":"rule-1","child_id":"child-1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodePermissionDenied, result.Error.Code)

	rec, result = ts.do(t, "POST", "/api/penalties/apply", ts.token(t, parentID), `{"rule_id":"","child_id":"child-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationFailed, result.Error.Code)

	rec, _ = ts.do(t, "POST", "/api/penalties/apply", ts.token(t, parentID), `{"rule_id":"r","child_id":"c","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestAppealAndResolve(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "POST", "/api/penalties/pen-1/appeal", ts.token(t, childID), `{"reason":"I did it"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)

	rec, result = ts.do(t, "POST", "/api/penalties/closed/appeal", ts.token(t, childID), `{"reason":"late"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeFailedPrecondition, result.Error.Code)

	rec, _ = ts.do(t, "POST", "/api/penalties/pen-1/resolve", ts.token(t, parentID), `{"decision":"approved","notes":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AppealApproved, ts.penalties.lastDecision)
}

func TestGenerateReport(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "POST", "/api/reports", ts.token(t, parentID), `{"start_date":"2024-06-03","end_date":"2024-06-09"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), ts.reports.start)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), ts.reports.end)

	rec, result = ts.do(t, "POST", "/api/reports", ts.token(t, parentID), `{"start_date":"June 3","end_date":"2024-06-09"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationFailed, result.Error.Code)

	rec, result = ts.do(t, "GET", "/api/families/fam-2/reports", ts.token(t, parentID), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodePermissionDenied, result.Error.Code)
}

func TestCreateRuleAndGoalDefaultFamily(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "POST", "/api/rules", ts.token(t, parentID), `{"name":"Late","trigger":"late_completion","severity":"minor","consequences":{"xp_deduction":5}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := result.Data.(map[string]interface{})
	assert.Equal(t, "rule-1", data["id"])
	assert.Equal(t, "fam-1", data["family_id"])

	rec, result = ts.do(t, "POST", "/api/rules", ts.token(t, parentID), `{"name":"No trigger"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationFailed, result.Error.Code)

	rec, _ = ts.do(t, "PUT", "/api/rules/rule-1/active", ts.token(t, parentID), `{"active":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, result = ts.do(t, "POST", "/api/goals", ts.token(t, parentID), `{"title":"Camping","type":"total_xp","target_value":500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fam-1", result.Data.(map[string]interface{})["family_id"])
}

func TestExport(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "GET", "/api/families/fam-1/export?since=2024-05-01", ts.token(t, parentID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), ts.exports.since)

	rec, _ = ts.do(t, "GET", "/api/families/fam-1/export?since=yesterday", ts.token(t, parentID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, "GET", "/api/families/fam-1/export", ts.token(t, childID), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHooksRequireSystem(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"id":"evt-1","family_id":"fam-1","child_id":"child-1","quest":{"quest_id":"q-1","xp_earned":10}}`

	rec, result := ts.do(t, "POST", "/hooks/quest-completions", ts.token(t, parentID), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodePermissionDenied, result.Error.Code)
	assert.Empty(t, ts.events.handled)

	rec, result = ts.do(t, "POST", "/hooks/quest-completions", ts.token(t, systemID), body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)
	require.Len(t, ts.events.handled, 1)
	assert.Equal(t, 10, ts.events.handled[0].Quest.XPEarned)

	rec, _ = ts.do(t, "POST", "/hooks/reward-redemptions", ts.token(t, systemID), `{"id":"r-1","family_id":"fam-1","child_id":"child-1","redemption":{"reward_id":"bike","xp_spent":50}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	flag := `{"family_id":"fam-1","child_id":"child-1","behavior":{"violation":true}}`
	rec, _ = ts.do(t, "POST", "/hooks/behavior-flags", ts.token(t, childID), flag)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, result = ts.do(t, "POST", "/hooks/behavior-flags", ts.token(t, parentID), flag)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Data.(map[string]interface{})["needs_review"].(bool))
}

func TestRateLimited(t *testing.T) {
	ts := newTestServer(t, security.NewRateLimiter(0.001, 2))
	token := ts.token(t, parentID)

	for i := 0; i < 2; i++ {
		rec, _ := ts.do(t, "GET", "/api/families/fam-1/streaks", token, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, result := ts.do(t, "GET", "/api/families/fam-1/streaks", token, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, result.Error.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, result := ts.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Success)

	req := httptest.NewRequest("GET", "/metrics", nil)
	mrec := httptest.NewRecorder()
	ts.handler.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "test_http_request_duration_seconds")
}
