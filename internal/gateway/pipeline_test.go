package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
	"github.com/amerfu/aigw/internal/services/audit"
	"github.com/amerfu/aigw/internal/services/budget"
	"github.com/amerfu/aigw/internal/services/pricing"
	"github.com/amerfu/aigw/internal/services/providers"
	"github.com/amerfu/aigw/internal/services/redact"
	"github.com/amerfu/aigw/internal/services/routing"
)

type scriptedAdapter struct {
	name      string
	err       error
	panics    bool
	response  *providers.Response
	gotParams *providers.Params
}

func (s *scriptedAdapter) Name() string         { return s.name }
func (s *scriptedAdapter) Available() bool      { return true }
func (s *scriptedAdapter) DefaultModel() string { return "claude-sonnet-4-6" }

func (s *scriptedAdapter) Complete(_ context.Context, params *providers.Params) (*providers.Response, error) {
	s.gotParams = params
	if s.panics {
		panic("adapter blew up")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &providers.Response{
		Content:          "The capital of France is Paris.",
		ModelUsed:        "claude-sonnet-4-6",
		PromptTokens:     100,
		CompletionTokens: 50,
	}, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	adapter  *scriptedAdapter
	budgets  *budget.MemoryStore
	audits   *audit.Logger
}

func newFixture(t *testing.T, adapters ...providers.Adapter) *pipelineFixture {
	t.Helper()

	var primary *scriptedAdapter
	if len(adapters) == 0 {
		primary = &scriptedAdapter{name: "anthropic"}
		adapters = []providers.Adapter{primary}
	} else if a, ok := adapters[0].(*scriptedAdapter); ok {
		primary = a
	}

	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}

	table, err := pricing.Load("")
	require.NoError(t, err)

	audits, err := audit.NewLogger(config.AuditConfig{
		LogFile:     t.TempDir() + "/audit.jsonl",
		SIEMTimeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	budgets := budget.NewMemoryStore(config.BudgetConfig{
		DefaultDailyUSD:   10.0,
		DefaultMonthlyUSD: 200.0,
	}, zap.NewNop())

	redactor := redact.New(config.PIIConfig{
		Enabled:  true,
		Entities: []string{"EMAIL_ADDRESS", "PHONE_NUMBER", "CREDIT_CARD", "US_SSN", "IP_ADDRESS"},
	}, zap.NewNop())

	return &pipelineFixture{
		pipeline: NewPipeline(redactor, routing.New(adapters, names, zap.NewNop()), table, budgets, audits, zap.NewNop()),
		adapter:  primary,
		budgets:  budgets,
		audits:   audits,
	}
}

func validRequest() *models.CompletionRequest {
	req := &models.CompletionRequest{
		Messages: []models.Message{
			{Role: "user", Content: "What is the capital of France?"},
		},
	}
	if err := req.Validate(); err != nil {
		panic(err)
	}
	return req
}

func TestPipeline_Success(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	resp, err := fx.pipeline.Process(ctx, "finance-team", validRequest())
	require.NoError(t, err)

	assert.Contains(t, resp.ID, "req-")
	assert.Equal(t, "anthropic", resp.ProviderUsed)
	assert.Equal(t, "claude-sonnet-4-6", resp.ModelUsed)
	assert.Equal(t, 150, resp.Usage.TotalTokens)
	assert.False(t, resp.FallbackTriggered)
	assert.NotEmpty(t, resp.Timestamp)

	t.Run("cost uses actual token counts", func(t *testing.T) {
		// 100 prompt at 0.003/1k + 50 completion at 0.015/1k
		assert.InDelta(t, 0.0003+0.00075, resp.Usage.EstimatedCostUSD, 1e-9)

		b, err := fx.budgets.Get(ctx, "finance-team")
		require.NoError(t, err)
		assert.InDelta(t, resp.Usage.EstimatedCostUSD, b.DailyUsedUSD, 1e-9)
		assert.Equal(t, 1, b.RequestCountToday)
	})

	t.Run("audit entry is written", func(t *testing.T) {
		entries, err := fx.audits.Recent(10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, resp.ID, entries[0].RequestID)
		assert.Equal(t, models.AuditStatusSuccess, entries[0].Status)
		assert.Equal(t, "anthropic", entries[0].ProviderUsed)
		assert.Equal(t, 100, entries[0].PromptTokens)
	})
}

func TestPipeline_RedactsBeforeProvider(t *testing.T) {
	fx := newFixture(t)

	req := &models.CompletionRequest{
		Messages: []models.Message{
			{Role: "user", Content: "Email john@corp.com about invoice 4532-1234-5678-9012"},
		},
	}
	require.NoError(t, req.Validate())

	resp, err := fx.pipeline.Process(context.Background(), "finance-team", req)
	require.NoError(t, err)

	t.Run("provider sees only redacted text", func(t *testing.T) {
		require.NotNil(t, fx.adapter.gotParams)
		sent := fx.adapter.gotParams.Messages[0].Content
		assert.NotContains(t, sent, "john@corp.com")
		assert.NotContains(t, sent, "4532-1234-5678-9012")
		assert.Contains(t, sent, "<EMAIL_ADDRESS>")
		assert.Contains(t, sent, "<CREDIT_CARD>")
	})

	t.Run("summary reports entities", func(t *testing.T) {
		assert.True(t, resp.PIISummary.Redacted)
		assert.Equal(t, 2, resp.PIISummary.RedactionCount)
		assert.Equal(t, []string{"CREDIT_CARD", "EMAIL_ADDRESS"}, resp.PIISummary.EntitiesFound)
	})

	t.Run("audit carries entity kinds but no content", func(t *testing.T) {
		entries, err := fx.audits.Recent(1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []string{"CREDIT_CARD", "EMAIL_ADDRESS"}, entries[0].PIIEntitiesRedacted)
		assert.Equal(t, 2, entries[0].PIIRedactionCount)
	})
}

func TestPipeline_BudgetExceeded(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Exhaust the daily window.
	require.NoError(t, fx.budgets.Record(ctx, "finance-team", 10.0))

	_, err := fx.pipeline.Process(ctx, "finance-team", validRequest())
	require.Error(t, err)

	var budgetErr *BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "finance-team", budgetErr.TeamID)
	assert.Contains(t, budgetErr.Reason, "daily budget exceeded")

	t.Run("provider is never called", func(t *testing.T) {
		assert.Nil(t, fx.adapter.gotParams)
	})

	t.Run("denial is audited", func(t *testing.T) {
		entries, err := fx.audits.Recent(10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.AuditStatusBudgetExceeded, entries[0].Status)
		assert.NotEmpty(t, entries[0].ErrorMessage)
	})
}

func TestPipeline_AllProvidersFail(t *testing.T) {
	failing := &scriptedAdapter{name: "anthropic", err: fmt.Errorf("status 500")}
	fx := newFixture(t, failing)

	_, err := fx.pipeline.Process(context.Background(), "finance-team", validRequest())
	require.Error(t, err)

	var gwErr *routing.GatewayError
	require.ErrorAs(t, err, &gwErr)

	entries, auditErr := fx.audits.Recent(10)
	require.NoError(t, auditErr)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditStatusError, entries[0].Status)

	t.Run("no spend is recorded on failure", func(t *testing.T) {
		b, err := fx.budgets.Get(context.Background(), "finance-team")
		require.NoError(t, err)
		assert.Zero(t, b.DailyUsedUSD)
	})
}

func TestPipeline_Fallback(t *testing.T) {
	failing := &scriptedAdapter{name: "anthropic", err: fmt.Errorf("status 503")}
	backup := &scriptedAdapter{name: "openai", response: &providers.Response{
		Content:          "Paris.",
		ModelUsed:        "gpt-4o",
		PromptTokens:     80,
		CompletionTokens: 10,
	}}
	fx := newFixture(t, failing, backup)

	resp, err := fx.pipeline.Process(context.Background(), "finance-team", validRequest())
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.ProviderUsed)
	assert.True(t, resp.FallbackTriggered)
	assert.Contains(t, resp.FallbackReason, "anthropic failed")

	entries, auditErr := fx.audits.Recent(1)
	require.NoError(t, auditErr)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].FallbackTriggered)
	assert.Equal(t, "openai", entries[0].ProviderUsed)
}

func TestPipeline_PanicStillAudits(t *testing.T) {
	exploding := &scriptedAdapter{name: "anthropic", panics: true}
	fx := newFixture(t, exploding)

	_, err := fx.pipeline.Process(context.Background(), "finance-team", validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal error")

	entries, auditErr := fx.audits.Recent(10)
	require.NoError(t, auditErr)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditStatusError, entries[0].Status)
	assert.Contains(t, entries[0].ErrorMessage, "panic")
}
