package handlers

import (
	"net/http"

	"github.com/amerfu/aigw/internal/services/routing"
)

type ProvidersHandler struct {
	router *routing.Router
}

func NewProvidersHandler(router *routing.Router) *ProvidersHandler {
	return &ProvidersHandler{router: router}
}

// Status handles GET /v1/providers/status. Reading status never
// mutates breaker state, so polling dashboards cannot reset cooldowns.
func (h *ProvidersHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.router.Status(),
	})
}
