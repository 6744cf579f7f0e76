package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"kiddoquest/internal/logger"
	"kiddoquest/internal/models"
	"kiddoquest/internal/service"
	"kiddoquest/internal/validation"
)

// PenaltyAPI is the part of the penalty service exposed to callers
type PenaltyAPI interface {
	ApplyManual(ctx context.Context, identity models.Identity, ruleID, childID string) (*models.AppliedPenalty, error)
	Appeal(ctx context.Context, identity models.Identity, penaltyID, reason string) (*models.AppliedPenalty, error)
	ResolveAppeal(ctx context.Context, identity models.Identity, penaltyID string, decision models.AppealStatus, notes string) (*models.AppliedPenalty, error)
	ActiveRestrictions(ctx context.Context, identity models.Identity, childID string) (*models.Restrictions, error)
}

// ReportAPI is the part of the report service exposed to callers
type ReportAPI interface {
	GenerateRange(ctx context.Context, identity models.Identity, familyID string, start, end time.Time) (*models.AnalyticsReport, error)
	FamilyReports(ctx context.Context, identity models.Identity, familyID string, limit int) ([]models.AnalyticsReport, error)
}

// RuleAPI manages penalty rules
type RuleAPI interface {
	CreateRule(ctx context.Context, identity models.Identity, rule *models.PenaltyRule) error
	SetActive(ctx context.Context, identity models.Identity, ruleID string, active bool) error
}

// GoalAPI manages family goals
type GoalAPI interface {
	CreateGoal(ctx context.Context, identity models.Identity, goal *models.FamilyGoal) error
}

// StreakAPI reads streaks
type StreakAPI interface {
	FamilyStreaks(ctx context.Context, identity models.Identity, familyID string) ([]models.Streak, error)
}

// ExportAPI dumps a family's engine state
type ExportAPI interface {
	Collect(ctx context.Context, identity models.Identity, familyID string, since time.Time) (*service.FamilyExport, error)
}

// APIHandler serves the callable entry points
type APIHandler struct {
	penalties PenaltyAPI
	reports   ReportAPI
	rules     RuleAPI
	goals     GoalAPI
	streaks   StreakAPI
	exports   ExportAPI
	log       *logger.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(penalties PenaltyAPI, reports ReportAPI, rules RuleAPI, goals GoalAPI, streaks StreakAPI, exports ExportAPI, log *logger.Logger) *APIHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &APIHandler{penalties: penalties, reports: reports, rules: rules, goals: goals, streaks: streaks, exports: exports, log: log}
}

type generateReportRequest struct {
	FamilyID  string `json:"family_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// GenerateReport builds a report for an inclusive date range
func (h *APIHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var req generateReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}
	if req.FamilyID == "" {
		req.FamilyID = identity.FamilyID
	}
	start, err := validation.ParseDate("start_date", req.StartDate)
	if err != nil {
		respondWithError(w, h.log, "", err)
		return
	}
	end, err := validation.ParseDate("end_date", req.EndDate)
	if err != nil {
		respondWithError(w, h.log, "", err)
		return
	}

	report, err := h.reports.GenerateRange(r.Context(), identity, req.FamilyID, start, end)
	if err != nil {
		respondWithError(w, h.log, "Error generating report", err)
		return
	}
	respondOK(w, report)
}

// ListReports returns a family's most recent reports
func (h *APIHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reports, err := h.reports.FamilyReports(r.Context(), identity, r.PathValue("id"), limit)
	if err != nil {
		respondWithError(w, h.log, "Error fetching reports", err)
		return
	}
	respondOK(w, reports)
}

type applyPenaltyRequest struct {
	RuleID  string `json:"rule_id"`
	ChildID string `json:"child_id"`
}

// ApplyPenalty applies a rule to a child on a guardian's request
func (h *APIHandler) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var req applyPenaltyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}
	if err := validation.ValidateID("rule_id", req.RuleID); err != nil {
		respondWithError(w, h.log, "", err)
		return
	}
	if err := validation.ValidateID("child_id", req.ChildID); err != nil {
		respondWithError(w, h.log, "", err)
		return
	}

	penalty, err := h.penalties.ApplyManual(r.Context(), identity, req.RuleID, req.ChildID)
	if err != nil {
		respondWithError(w, h.log, "Error applying penalty", err)
		return
	}
	respondOK(w, penalty)
}

type appealRequest struct {
	Reason string `json:"reason"`
}

// AppealPenalty files an appeal against a penalty
func (h *APIHandler) AppealPenalty(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var req appealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}

	penalty, err := h.penalties.Appeal(r.Context(), identity, r.PathValue("id"), req.Reason)
	if err != nil {
		respondWithError(w, h.log, "Error appealing penalty", err)
		return
	}
	respondOK(w, penalty)
}

type resolveRequest struct {
	Decision models.AppealStatus `json:"decision"`
	Notes    string              `json:"notes"`
}

// ResolveAppeal approves or denies a pending appeal
func (h *APIHandler) ResolveAppeal(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}

	penalty, err := h.penalties.ResolveAppeal(r.Context(), identity, r.PathValue("id"), req.Decision, req.Notes)
	if err != nil {
		respondWithError(w, h.log, "Error resolving appeal", err)
		return
	}
	respondOK(w, penalty)
}

// CreateRule stores a new penalty rule for the caller's family
func (h *APIHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var rule models.PenaltyRule
	if err := decodeJSON(w, r, &rule); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}
	if rule.FamilyID == "" {
		rule.FamilyID = identity.FamilyID
	}

	if err := h.rules.CreateRule(r.Context(), identity, &rule); err != nil {
		respondWithError(w, h.log, "Error creating rule", err)
		return
	}
	respondOK(w, rule)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetRuleActive enables or disables a rule
func (h *APIHandler) SetRuleActive(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}

	if err := h.rules.SetActive(r.Context(), identity, r.PathValue("id"), req.Active); err != nil {
		respondWithError(w, h.log, "Error updating rule", err)
		return
	}
	respondOK(w, map[string]bool{"active": req.Active})
}

// CreateGoal adds a family goal
func (h *APIHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var goal models.FamilyGoal
	if err := decodeJSON(w, r, &goal); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}
	if goal.FamilyID == "" {
		goal.FamilyID = identity.FamilyID
	}

	if err := h.goals.CreateGoal(r.Context(), identity, &goal); err != nil {
		respondWithError(w, h.log, "Error creating goal", err)
		return
	}
	respondOK(w, goal)
}

// Restrictions returns the locks currently imposed on a child
func (h *APIHandler) Restrictions(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())

	restrictions, err := h.penalties.ActiveRestrictions(r.Context(), identity, r.PathValue("id"))
	if err != nil {
		respondWithError(w, h.log, "Error fetching restrictions", err)
		return
	}
	respondOK(w, restrictions)
}

// Streaks returns the streaks of every child in a family
func (h *APIHandler) Streaks(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())

	list, err := h.streaks.FamilyStreaks(r.Context(), identity, r.PathValue("id"))
	if err != nil {
		respondWithError(w, h.log, "Error fetching streaks", err)
		return
	}
	respondOK(w, list)
}

// Export returns a family's rules, penalties, streaks, goals and reports.
// The optional since query parameter limits penalties by applied date.
func (h *APIHandler) Export(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := validation.ParseDate("since", v)
		if err != nil {
			respondWithError(w, h.log, "", err)
			return
		}
		since = parsed
	}

	data, err := h.exports.Collect(r.Context(), identity, r.PathValue("id"), since)
	if err != nil {
		respondWithError(w, h.log, "Error exporting family", err)
		return
	}
	respondOK(w, data)
}
