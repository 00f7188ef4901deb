// Package redact scrubs sensitive entities from prompt text before it
// leaves the enterprise network.
package redact

import (
	"context"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
)

// Result summarizes one redaction pass. RedactionCount is zero iff
// EntitiesFound is empty iff RedactedText equals the input.
type Result struct {
	RedactedText   string   `json:"redacted_text"`
	EntitiesFound  []string `json:"entities_found"`
	RedactionCount int      `json:"redaction_count"`
}

// Backend is a detection engine. Both backends satisfy the same
// contract; the regex backend covers a fixed entity subset while the
// presidio backend detects every configured entity kind.
type Backend interface {
	Name() string
	Redact(ctx context.Context, text string) (*Result, error)
}

// Redactor applies the configured backend, passing text through
// unchanged when redaction is disabled or the backend fails.
type Redactor struct {
	enabled bool
	backend Backend
	logger  *zap.Logger
}

// New selects the presidio backend when an analyzer URL is configured,
// otherwise the regex fallback.
func New(cfg config.PIIConfig, logger *zap.Logger) *Redactor {
	var backend Backend
	if cfg.Presidio.AnalyzerURL != "" {
		backend = newPresidioBackend(cfg.Presidio, cfg.Entities, logger)
	} else {
		backend = newRegexBackend(cfg.Entities)
	}

	logger.Info("PII redactor initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("backend", backend.Name()))

	return &Redactor{
		enabled: cfg.Enabled,
		backend: backend,
		logger:  logger,
	}
}

// Backend reports the active detection backend name.
func (r *Redactor) Backend() string {
	return r.backend.Name()
}

// Redact detects and replaces PII in text. It never fails: a backend
// error degrades to passing the text through with zero entities.
func (r *Redactor) Redact(ctx context.Context, text string) *Result {
	if !r.enabled || text == "" {
		return &Result{RedactedText: text, EntitiesFound: []string{}}
	}

	result, err := r.backend.Redact(ctx, text)
	if err != nil {
		r.logger.Warn("PII backend failed, passing text through unredacted",
			zap.String("backend", r.backend.Name()),
			zap.Error(err))
		return &Result{RedactedText: text, EntitiesFound: []string{}}
	}
	return result
}

// placeholder returns the literal replacement token for an entity kind.
// The angle brackets keep placeholders from matching any detector.
func placeholder(entity string) string {
	return "<" + entity + ">"
}
