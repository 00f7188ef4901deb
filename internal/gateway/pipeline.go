// Package gateway runs the request pipeline: redact, budget check,
// route, account, audit. Every request that enters the pipeline leaves
// exactly one audit entry regardless of outcome.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/models"
	"github.com/amerfu/aigw/internal/services/audit"
	"github.com/amerfu/aigw/internal/services/budget"
	"github.com/amerfu/aigw/internal/services/pricing"
	"github.com/amerfu/aigw/internal/services/providers"
	"github.com/amerfu/aigw/internal/services/redact"
	"github.com/amerfu/aigw/internal/services/routing"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigw_requests_total",
		Help: "Gateway requests by serving provider and outcome",
	}, []string{"provider", "status"})

	costTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigw_cost_usd_total",
		Help: "Accumulated completion cost in USD by team",
	}, []string{"team"})

	piiRedactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aigw_pii_redactions_total",
		Help: "Total PII entities replaced across all requests",
	})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aigw_fallbacks_total",
		Help: "Requests served by a provider other than the first tried",
	})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aigw_request_duration_seconds",
		Help:    "End to end gateway latency by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
)

// BudgetExceededError denies a request before any provider is called.
type BudgetExceededError struct {
	TeamID string
	Reason string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for team %s: %s", e.TeamID, e.Reason)
}

type Pipeline struct {
	redactor *redact.Redactor
	router   *routing.Router
	pricing  pricing.Table
	budgets  budget.Store
	audits   *audit.Logger
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(
	redactor *redact.Redactor,
	router *routing.Router,
	table pricing.Table,
	budgets budget.Store,
	audits *audit.Logger,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		redactor: redactor,
		router:   router,
		pricing:  table,
		budgets:  budgets,
		audits:   audits,
		logger:   logger.Named("pipeline"),
		now:      time.Now,
	}
}

// Process runs one validated request through the pipeline. The request
// messages are redacted in place before anything else sees them.
func (p *Pipeline) Process(ctx context.Context, teamID string, req *models.CompletionRequest) (resp *models.CompletionResponse, err error) {
	start := p.now()
	requestID := "req-" + uuid.New().String()

	entry := &models.AuditEntry{
		RequestID:           requestID,
		TeamID:              teamID,
		ProviderRequested:   req.Provider,
		PIIEntitiesRedacted: []string{},
		Status:              models.AuditStatusError,
	}

	// The audit trail must record the request even if a later stage
	// panics.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error processing request %s", requestID)
			entry.Status = models.AuditStatusError
			entry.ErrorMessage = fmt.Sprintf("panic: %v", r)
			p.logger.Error("Pipeline panic",
				zap.String("request_id", requestID),
				zap.Any("panic", r))
		}

		entry.Timestamp = models.UTCTimestamp(p.now())
		entry.LatencyMS = float64(p.now().Sub(start).Microseconds()) / 1000.0
		if logErr := p.audits.Log(entry); logErr != nil {
			p.logger.Error("Failed to write audit entry",
				zap.String("request_id", requestID),
				zap.Error(logErr))
		}

		requestsTotal.WithLabelValues(orUnknown(entry.ProviderUsed), entry.Status).Inc()
		requestLatency.WithLabelValues(entry.Status).Observe(p.now().Sub(start).Seconds())
	}()

	// Redact before budget checks so denied prompts never linger in
	// their raw form.
	summary := p.redactMessages(ctx, req)
	entry.PIIEntitiesRedacted = summary.EntitiesFound
	entry.PIIRedactionCount = summary.RedactionCount
	if summary.RedactionCount > 0 {
		piiRedactions.Add(float64(summary.RedactionCount))
	}

	estimatedCost := p.estimateCost(req)
	check, err := p.budgets.Check(ctx, teamID, estimatedCost)
	if err != nil {
		entry.ErrorMessage = err.Error()
		return nil, fmt.Errorf("budget check failed: %w", err)
	}
	if !check.Allowed {
		entry.Status = models.AuditStatusBudgetExceeded
		entry.ErrorMessage = check.Reason
		return nil, &BudgetExceededError{TeamID: teamID, Reason: check.Reason}
	}

	params := &providers.Params{
		Messages:    req.Messages,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: *req.Temperature,
	}
	result, err := p.router.Route(ctx, params, req.Provider)
	if err != nil {
		entry.ErrorMessage = err.Error()
		return nil, err
	}

	actualCost := p.pricing.EstimateCost(result.Provider, result.Response.ModelUsed,
		result.Response.PromptTokens, result.Response.CompletionTokens)
	if recordErr := p.budgets.Record(ctx, teamID, actualCost); recordErr != nil {
		// The completion already happened; losing the charge is worse
		// for the ledger than for this request, so log loudly and
		// return the response anyway.
		p.logger.Error("Failed to record spend",
			zap.String("request_id", requestID),
			zap.String("team_id", teamID),
			zap.Float64("cost_usd", actualCost),
			zap.Error(recordErr))
	}
	costTotal.WithLabelValues(teamID).Add(actualCost)
	if result.FallbackTriggered {
		fallbacksTotal.Inc()
	}

	latencyMS := float64(p.now().Sub(start).Microseconds()) / 1000.0

	entry.Status = models.AuditStatusSuccess
	entry.ProviderUsed = result.Provider
	entry.ModelUsed = result.Response.ModelUsed
	entry.PromptTokens = result.Response.PromptTokens
	entry.CompletionTokens = result.Response.CompletionTokens
	entry.EstimatedCostUSD = actualCost
	entry.FallbackTriggered = result.FallbackTriggered
	entry.FallbackReason = result.FallbackReason

	return &models.CompletionResponse{
		ID:           requestID,
		ProviderUsed: result.Provider,
		ModelUsed:    result.Response.ModelUsed,
		Content:      result.Response.Content,
		Usage: models.TokenUsage{
			PromptTokens:     result.Response.PromptTokens,
			CompletionTokens: result.Response.CompletionTokens,
			TotalTokens:      result.Response.PromptTokens + result.Response.CompletionTokens,
			EstimatedCostUSD: actualCost,
		},
		PIISummary:        summary,
		LatencyMS:         latencyMS,
		FallbackTriggered: result.FallbackTriggered,
		FallbackReason:    result.FallbackReason,
		Timestamp:         models.UTCTimestamp(p.now()),
	}, nil
}

// redactMessages scrubs every message in place and aggregates the
// summary across messages.
func (p *Pipeline) redactMessages(ctx context.Context, req *models.CompletionRequest) models.PIIRedactionSummary {
	entitySet := make(map[string]bool)
	count := 0

	for i := range req.Messages {
		result := p.redactor.Redact(ctx, req.Messages[i].Content)
		req.Messages[i].Content = result.RedactedText
		count += result.RedactionCount
		for _, e := range result.EntitiesFound {
			entitySet[e] = true
		}
	}

	entities := make([]string, 0, len(entitySet))
	for e := range entitySet {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	return models.PIIRedactionSummary{
		Redacted:       count > 0,
		EntitiesFound:  entities,
		RedactionCount: count,
	}
}

// estimateCost prices the worst case: the redacted prompt plus a
// completion that uses every allowed token, at the rates of the
// provider the router will try first.
func (p *Pipeline) estimateCost(req *models.CompletionRequest) float64 {
	provider := req.Provider
	if provider == "" {
		statuses := p.router.Status()
		if len(statuses) > 0 {
			provider = statuses[0].Provider
		}
	}

	model := req.Model
	if model == "" {
		if adapter, ok := p.router.Adapter(provider); ok {
			model = adapter.DefaultModel()
		}
	}

	promptTokens := providers.EstimatePromptTokens(req.Messages)
	return p.pricing.EstimateCost(provider, model, promptTokens, req.MaxTokens)
}

func orUnknown(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
