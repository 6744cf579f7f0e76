package handlers

import (
	"net/http"

	"kiddoquest/internal/metrics"
)

// NewRouter wires every route behind the logging middleware
func NewRouter(api *APIHandler, hooks *HookHandler, mw *Middleware, m *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondOK(w, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", m.Handler())

	mux.HandleFunc("POST /api/reports", mw.RequireAuth(api.GenerateReport))
	mux.HandleFunc("GET /api/families/{id}/reports", mw.RequireAuth(api.ListReports))
	mux.HandleFunc("GET /api/families/{id}/streaks", mw.RequireAuth(api.Streaks))
	mux.HandleFunc("GET /api/families/{id}/export", mw.RequireAuth(api.Export))
	mux.HandleFunc("POST /api/penalties/apply", mw.RequireAuth(api.ApplyPenalty))
	mux.HandleFunc("POST /api/penalties/{id}/appeal", mw.RequireAuth(api.AppealPenalty))
	mux.HandleFunc("POST /api/penalties/{id}/resolve", mw.RequireAuth(api.ResolveAppeal))
	mux.HandleFunc("POST /api/rules", mw.RequireAuth(api.CreateRule))
	mux.HandleFunc("PUT /api/rules/{id}/active", mw.RequireAuth(api.SetRuleActive))
	mux.HandleFunc("POST /api/goals", mw.RequireAuth(api.CreateGoal))
	mux.HandleFunc("GET /api/children/{id}/restrictions", mw.RequireAuth(api.Restrictions))

	mux.HandleFunc("POST /hooks/quest-completions", mw.RequireSystem(hooks.QuestCompleted))
	mux.HandleFunc("POST /hooks/reward-redemptions", mw.RequireSystem(hooks.RewardRedeemed))
	mux.HandleFunc("POST /hooks/behavior-flags", mw.RequireAuth(hooks.BehaviorFlagged))

	return mw.Logging(mux)
}
