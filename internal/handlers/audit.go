package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/services/audit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

type AuditHandler struct {
	audits *audit.Logger
	logger *zap.Logger
}

func NewAuditHandler(audits *audit.Logger, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audits: audits,
		logger: logger,
	}
}

// Recent handles GET /v1/audit/recent?limit=N (admin).
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	entries, err := h.audits.Recent(limit)
	if err != nil {
		h.logger.Error("Failed to read audit log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
