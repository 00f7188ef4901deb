package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/middleware"
	"github.com/amerfu/aigw/internal/models"
	"github.com/amerfu/aigw/internal/services/budget"
)

type BudgetHandler struct {
	store  budget.Store
	teams  []string
	logger *zap.Logger
}

// NewBudgetHandler lists the configured teams alongside whatever teams
// the store has seen, so a team shows up before its first request.
func NewBudgetHandler(store budget.Store, teamKeys map[string]string, logger *zap.Logger) *BudgetHandler {
	seen := make(map[string]bool)
	var teams []string
	for _, teamID := range teamKeys {
		if !seen[teamID] {
			seen[teamID] = true
			teams = append(teams, teamID)
		}
	}
	sort.Strings(teams)

	return &BudgetHandler{
		store:  store,
		teams:  teams,
		logger: logger,
	}
}

// Get handles GET /v1/budget: the calling team's own window.
func (h *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID, ok := middleware.TeamFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated team")
		return
	}

	b, err := h.store.Get(r.Context(), teamID)
	if err != nil {
		h.logger.Error("Failed to load budget", zap.String("team_id", teamID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load budget")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// List handles GET /v1/budget/all (admin): every known team.
func (h *BudgetHandler) List(w http.ResponseWriter, r *http.Request) {
	byTeam := make(map[string]*models.TeamBudget)

	stored, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("Failed to list budgets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list budgets")
		return
	}
	for _, b := range stored {
		byTeam[b.TeamID] = b
	}

	for _, teamID := range h.teams {
		if _, ok := byTeam[teamID]; ok {
			continue
		}
		b, err := h.store.Get(r.Context(), teamID)
		if err != nil {
			h.logger.Error("Failed to load budget", zap.String("team_id", teamID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list budgets")
			return
		}
		byTeam[teamID] = b
	}

	ids := make([]string, 0, len(byTeam))
	for id := range byTeam {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	budgets := make([]*models.TeamBudget, 0, len(ids))
	for _, id := range ids {
		budgets = append(budgets, byTeam[id])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"budgets": budgets})
}

type setLimitsRequest struct {
	TeamID          string   `json:"team_id"`
	DailyLimitUSD   *float64 `json:"daily_limit_usd,omitempty"`
	MonthlyLimitUSD *float64 `json:"monthly_limit_usd,omitempty"`
}

// SetLimits handles POST /v1/budget/limits (admin).
func (h *BudgetHandler) SetLimits(w http.ResponseWriter, r *http.Request) {
	var req setLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TeamID == "" {
		writeError(w, http.StatusBadRequest, "team_id is required")
		return
	}
	if req.DailyLimitUSD == nil && req.MonthlyLimitUSD == nil {
		writeError(w, http.StatusBadRequest, "at least one of daily_limit_usd or monthly_limit_usd is required")
		return
	}
	if (req.DailyLimitUSD != nil && *req.DailyLimitUSD < 0) ||
		(req.MonthlyLimitUSD != nil && *req.MonthlyLimitUSD < 0) {
		writeError(w, http.StatusBadRequest, "limits must not be negative")
		return
	}

	b, err := h.store.SetLimits(r.Context(), req.TeamID, req.DailyLimitUSD, req.MonthlyLimitUSD)
	if err != nil {
		h.logger.Error("Failed to set limits", zap.String("team_id", req.TeamID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to set limits")
		return
	}
	writeJSON(w, http.StatusOK, b)
}
