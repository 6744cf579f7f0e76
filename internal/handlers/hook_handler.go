package handlers

import (
	"context"
	"net/http"

	"kiddoquest/internal/logger"
	"kiddoquest/internal/models"
	"kiddoquest/internal/service"
)

// EventAPI handles on-write triggers
type EventAPI interface {
	HandleQuestCompleted(ctx context.Context, event models.Event) (*service.EventOutcome, error)
	HandleRewardRedeemed(ctx context.Context, event models.Event) (*service.EventOutcome, error)
	HandleBehaviorFlag(ctx context.Context, identity models.Identity, event models.Event) (*service.EventOutcome, error)
}

// HookHandler receives document-write triggers from the app backend
type HookHandler struct {
	events EventAPI
	log    *logger.Logger
}

// NewHookHandler creates a new hook handler
func NewHookHandler(events EventAPI, log *logger.Logger) *HookHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HookHandler{events: events, log: log}
}

// QuestCompleted handles a completed quest write
func (h *HookHandler) QuestCompleted(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, _ models.Identity, e models.Event) (*service.EventOutcome, error) {
		return h.events.HandleQuestCompleted(ctx, e)
	})
}

// RewardRedeemed handles a reward redemption write
func (h *HookHandler) RewardRedeemed(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, _ models.Identity, e models.Event) (*service.EventOutcome, error) {
		return h.events.HandleRewardRedeemed(ctx, e)
	})
}

// BehaviorFlagged handles a parent's behavior flag
func (h *HookHandler) BehaviorFlagged(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.events.HandleBehaviorFlag)
}

func (h *HookHandler) handle(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Identity, models.Event) (*service.EventOutcome, error)) {
	identity, _ := GetIdentityFromContext(r.Context())
	var event models.Event
	if err := decodeJSON(w, r, &event); err != nil {
		respondWithError(w, h.log, ErrInvalidBody, err)
		return
	}

	outcome, err := fn(r.Context(), identity, event)
	if err != nil {
		respondWithError(w, h.log, "Error handling event", err)
		return
	}
	if len(outcome.FailedSteps) > 0 {
		h.log.Warn("Event handled with failed steps", "event_id", outcome.EventID, "failed", outcome.FailedSteps)
	}
	respondOK(w, outcome)
}
