package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/gateway"
	"github.com/amerfu/aigw/internal/middleware"
	"github.com/amerfu/aigw/internal/models"
	"github.com/amerfu/aigw/internal/services/routing"
)

type CompletionsHandler struct {
	pipeline *gateway.Pipeline
	logger   *zap.Logger
}

func NewCompletionsHandler(pipeline *gateway.Pipeline, logger *zap.Logger) *CompletionsHandler {
	return &CompletionsHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Complete handles POST /v1/complete.
func (h *CompletionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	teamID, ok := middleware.TeamFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated team")
		return
	}

	var req models.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The body's team_id is informational only; identity comes from the
	// API key.
	req.TeamID = teamID

	resp, err := h.pipeline.Process(r.Context(), teamID, &req)
	if err != nil {
		h.writeProcessError(w, r, teamID, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *CompletionsHandler) writeProcessError(w http.ResponseWriter, r *http.Request, teamID string, err error) {
	var budgetErr *gateway.BudgetExceededError
	if errors.As(err, &budgetErr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":  "budget_exceeded",
			"detail": budgetErr.Reason,
		})
		return
	}

	var gwErr *routing.GatewayError
	if errors.As(err, &gwErr) {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":           "all_providers_failed",
			"provider_errors": gwErr.ProviderErrors,
		})
		return
	}

	if r.Context().Err() != nil {
		// Client went away; nothing useful to write.
		return
	}

	h.logger.Error("Completion failed",
		zap.String("team_id", teamID),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
