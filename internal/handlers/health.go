package handlers

import (
	"net/http"

	"github.com/amerfu/aigw/internal/services/redact"
	"github.com/amerfu/aigw/internal/services/routing"
)

type HealthResponse struct {
	Status      string `json:"status"`
	PIIBackend  string `json:"pii_backend"`
	Providers   int    `json:"providers_configured"`
	BudgetStore string `json:"budget_store"`
}

type HealthHandler struct {
	router      *routing.Router
	redactor    *redact.Redactor
	budgetStore string
}

func NewHealthHandler(router *routing.Router, redactor *redact.Redactor, budgetStore string) *HealthHandler {
	return &HealthHandler{
		router:      router,
		redactor:    redactor,
		budgetStore: budgetStore,
	}
}

// Health reports liveness plus a coarse view of what is wired up. The
// gateway is degraded, not down, when no provider has credentials.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	configured := 0
	for _, status := range h.router.Status() {
		if status.Configured {
			configured++
		}
	}

	response := HealthResponse{
		Status:      "ok",
		PIIBackend:  h.redactor.Backend(),
		Providers:   configured,
		BudgetStore: h.budgetStore,
	}
	if configured == 0 {
		response.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, response)
}
