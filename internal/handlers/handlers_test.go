package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/gateway"
	"github.com/amerfu/aigw/internal/middleware"
	"github.com/amerfu/aigw/internal/models"
	"github.com/amerfu/aigw/internal/services/audit"
	"github.com/amerfu/aigw/internal/services/budget"
	"github.com/amerfu/aigw/internal/services/pricing"
	"github.com/amerfu/aigw/internal/services/providers"
	"github.com/amerfu/aigw/internal/services/redact"
	"github.com/amerfu/aigw/internal/services/routing"
)

type stubAdapter struct {
	name string
	err  error
}

func (s *stubAdapter) Name() string         { return s.name }
func (s *stubAdapter) Available() bool      { return true }
func (s *stubAdapter) DefaultModel() string { return "claude-sonnet-4-6" }

func (s *stubAdapter) Complete(_ context.Context, _ *providers.Params) (*providers.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &providers.Response{
		Content:          "Paris.",
		ModelUsed:        "claude-sonnet-4-6",
		PromptTokens:     50,
		CompletionTokens: 10,
	}, nil
}

type testStack struct {
	auth        *middleware.Authenticator
	completions *CompletionsHandler
	providers   *ProvidersHandler
	budget      *BudgetHandler
	audit       *AuditHandler
	health      *HealthHandler
	budgets     *budget.MemoryStore
}

func newStack(t *testing.T, adapters ...providers.Adapter) *testStack {
	t.Helper()

	if len(adapters) == 0 {
		adapters = []providers.Adapter{&stubAdapter{name: "anthropic"}}
	}
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}

	logger := zap.NewNop()
	authCfg := config.AuthConfig{
		APIKeyHeader: "X-API-Key",
		TeamKeys:     map[string]string{"sk-gateway-finance-001": "finance-team"},
		MasterKey:    "master-secret",
		SecretKey:    "signing-secret",
	}

	table, err := pricing.Load("")
	require.NoError(t, err)

	audits, err := audit.NewLogger(config.AuditConfig{
		LogFile:     t.TempDir() + "/audit.jsonl",
		SIEMTimeout: time.Second,
	}, logger)
	require.NoError(t, err)

	budgets := budget.NewMemoryStore(config.BudgetConfig{
		DefaultDailyUSD:   10.0,
		DefaultMonthlyUSD: 200.0,
	}, logger)

	redactor := redact.New(config.PIIConfig{
		Enabled:  true,
		Entities: []string{"EMAIL_ADDRESS", "PHONE_NUMBER", "CREDIT_CARD", "US_SSN", "IP_ADDRESS"},
	}, logger)

	rt := routing.New(adapters, names, logger)
	pipeline := gateway.NewPipeline(redactor, rt, table, budgets, audits, logger)

	return &testStack{
		auth:        middleware.NewAuthenticator(authCfg, logger),
		completions: NewCompletionsHandler(pipeline, logger),
		providers:   NewProvidersHandler(rt),
		budget:      NewBudgetHandler(budgets, authCfg.TeamKeys, logger),
		audit:       NewAuditHandler(audits, logger),
		health:      NewHealthHandler(rt, redactor, "memory"),
		budgets:     budgets,
	}
}

func completeBody(t *testing.T, content string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": content}},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestComplete(t *testing.T) {
	stack := newStack(t)
	handler := stack.auth.RequireTeam(http.HandlerFunc(stack.completions.Complete))

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/complete", completeBody(t, "What is the capital of France?"))
		req.Header.Set("X-API-Key", "sk-gateway-finance-001")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.CompletionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Paris.", resp.Content)
		assert.Equal(t, "anthropic", resp.ProviderUsed)
		assert.Equal(t, 60, resp.Usage.TotalTokens)
	})

	t.Run("invalid body is 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/complete", bytes.NewBufferString("{not json"))
		req.Header.Set("X-API-Key", "sk-gateway-finance-001")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty messages is 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/complete", bytes.NewBufferString(`{"messages":[]}`))
		req.Header.Set("X-API-Key", "sk-gateway-finance-001")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing key is 401", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/complete", completeBody(t, "hello"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestComplete_BudgetExceeded(t *testing.T) {
	stack := newStack(t)
	handler := stack.auth.RequireTeam(http.HandlerFunc(stack.completions.Complete))

	require.NoError(t, stack.budgets.Record(context.Background(), "finance-team", 10.0))

	req := httptest.NewRequest("POST", "/v1/complete", completeBody(t, "hello"))
	req.Header.Set("X-API-Key", "sk-gateway-finance-001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "budget_exceeded", resp["error"])
	assert.Contains(t, resp["detail"], "daily budget exceeded")
}

func TestComplete_AllProvidersFail(t *testing.T) {
	stack := newStack(t, &stubAdapter{name: "anthropic", err: fmt.Errorf("status 500")})
	handler := stack.auth.RequireTeam(http.HandlerFunc(stack.completions.Complete))

	req := httptest.NewRequest("POST", "/v1/complete", completeBody(t, "hello"))
	req.Header.Set("X-API-Key", "sk-gateway-finance-001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp struct {
		Error          string            `json:"error"`
		ProviderErrors map[string]string `json:"provider_errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "all_providers_failed", resp.Error)
	assert.Equal(t, "status 500", resp.ProviderErrors["anthropic"])
}

func TestProvidersStatus(t *testing.T) {
	stack := newStack(t)

	rec := httptest.NewRecorder()
	stack.providers.Status(rec, httptest.NewRequest("GET", "/v1/providers/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Providers []routing.ProviderStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "anthropic", resp.Providers[0].Provider)
	assert.Equal(t, "closed", resp.Providers[0].Circuit.State)
}

func TestBudgetEndpoints(t *testing.T) {
	stack := newStack(t)

	t.Run("get own budget", func(t *testing.T) {
		handler := stack.auth.RequireTeam(http.HandlerFunc(stack.budget.Get))
		req := httptest.NewRequest("GET", "/v1/budget", nil)
		req.Header.Set("X-API-Key", "sk-gateway-finance-001")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var b models.TeamBudget
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.Equal(t, "finance-team", b.TeamID)
		assert.InDelta(t, 10.0, b.DailyLimitUSD, 1e-9)
	})

	t.Run("list includes configured teams before first request", func(t *testing.T) {
		handler := stack.auth.RequireAdmin(http.HandlerFunc(stack.budget.List))
		req := httptest.NewRequest("GET", "/v1/budget/all", nil)
		req.Header.Set("Authorization", "Bearer master-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Budgets []models.TeamBudget `json:"budgets"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Budgets)
		assert.Equal(t, "finance-team", resp.Budgets[0].TeamID)
	})

	t.Run("set limits requires admin", func(t *testing.T) {
		handler := stack.auth.RequireAdmin(http.HandlerFunc(stack.budget.SetLimits))
		body := bytes.NewBufferString(`{"team_id":"finance-team","daily_limit_usd":25}`)
		req := httptest.NewRequest("POST", "/v1/budget/limits", body)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("set limits with master key", func(t *testing.T) {
		handler := stack.auth.RequireAdmin(http.HandlerFunc(stack.budget.SetLimits))
		body := bytes.NewBufferString(`{"team_id":"finance-team","daily_limit_usd":25}`)
		req := httptest.NewRequest("POST", "/v1/budget/limits", body)
		req.Header.Set("Authorization", "Bearer master-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var b models.TeamBudget
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.InDelta(t, 25.0, b.DailyLimitUSD, 1e-9)
	})

	t.Run("set limits rejects empty override", func(t *testing.T) {
		handler := stack.auth.RequireAdmin(http.HandlerFunc(stack.budget.SetLimits))
		body := bytes.NewBufferString(`{"team_id":"finance-team"}`)
		req := httptest.NewRequest("POST", "/v1/budget/limits", body)
		req.Header.Set("Authorization", "Bearer master-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuditRecent(t *testing.T) {
	stack := newStack(t)
	complete := stack.auth.RequireTeam(http.HandlerFunc(stack.completions.Complete))

	// Generate two audited requests.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/v1/complete", completeBody(t, "email bob@corp.com"))
		req.Header.Set("X-API-Key", "sk-gateway-finance-001")
		rec := httptest.NewRecorder()
		complete.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	stack.audit.Recent(rec, httptest.NewRequest("GET", "/v1/audit/recent?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []models.AuditEntry `json:"entries"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "finance-team", resp.Entries[0].TeamID)
	assert.Equal(t, []string{"EMAIL_ADDRESS"}, resp.Entries[0].PIIEntitiesRedacted)

	t.Run("bad limit is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		stack.audit.Recent(rec, httptest.NewRequest("GET", "/v1/audit/recent?limit=zero", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	stack := newStack(t)

	rec := httptest.NewRecorder()
	stack.health.Health(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "regex", resp.PIIBackend)
	assert.Equal(t, 1, resp.Providers)
	assert.Equal(t, "memory", resp.BudgetStore)
}
