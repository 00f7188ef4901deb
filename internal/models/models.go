package models

import (
	"fmt"
	"time"
)

// Provider tags for the upstream completion services.
const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure_openai"
	ProviderGemini      = "gemini"
)

// AllProviders is the canonical ordering used for status reporting.
var AllProviders = []string{ProviderAnthropic, ProviderOpenAI, ProviderAzureOpenAI, ProviderGemini}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the inbound request shape for POST /v1/complete.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TeamID      string    `json:"team_id,omitempty"`
}

// Validate applies defaults and enforces the request invariants.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 1024
	}
	if r.MaxTokens < 1 || r.MaxTokens > 8192 {
		return fmt.Errorf("max_tokens must be between 1 and 8192")
	}
	if r.Temperature == nil {
		t := 0.7
		r.Temperature = &t
	}
	if *r.Temperature < 0.0 || *r.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if r.Provider != "" {
		valid := false
		for _, p := range AllProviders {
			if p == r.Provider {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown provider %q", r.Provider)
		}
	}
	return nil
}

type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type PIIRedactionSummary struct {
	Redacted       bool     `json:"redacted"`
	EntitiesFound  []string `json:"entities_found"`
	RedactionCount int      `json:"redaction_count"`
}

// CompletionResponse is the normalized success response returned to callers.
type CompletionResponse struct {
	ID                string              `json:"id"`
	ProviderUsed      string              `json:"provider_used"`
	ModelUsed         string              `json:"model_used"`
	Content           string              `json:"content"`
	Usage             TokenUsage          `json:"usage"`
	PIISummary        PIIRedactionSummary `json:"pii_summary"`
	LatencyMS         float64             `json:"latency_ms"`
	FallbackTriggered bool                `json:"fallback_triggered"`
	FallbackReason    string              `json:"fallback_reason,omitempty"`
	Timestamp         string              `json:"timestamp"`
}

// TeamBudget is the externally visible view of one tenant's budget window.
type TeamBudget struct {
	TeamID              string  `json:"team_id"`
	DailyLimitUSD       float64 `json:"daily_limit_usd"`
	MonthlyLimitUSD     float64 `json:"monthly_limit_usd"`
	DailyUsedUSD        float64 `json:"daily_used_usd"`
	MonthlyUsedUSD      float64 `json:"monthly_used_usd"`
	DailyRemainingUSD   float64 `json:"daily_remaining_usd"`
	MonthlyRemainingUSD float64 `json:"monthly_remaining_usd"`
	RequestCountToday   int     `json:"request_count_today"`
	RequestCountMonth   int     `json:"request_count_month"`
	LastUpdated         string  `json:"last_updated"`
}

// Audit statuses.
const (
	AuditStatusSuccess        = "success"
	AuditStatusError          = "error"
	AuditStatusBudgetExceeded = "budget_exceeded"
)

// AuditEntry is the metadata-only record of one request's fate.
// Prompt and completion content must never appear here.
type AuditEntry struct {
	Timestamp           string   `json:"timestamp"`
	RequestID           string   `json:"request_id"`
	TeamID              string   `json:"team_id"`
	ProviderRequested   string   `json:"provider_requested,omitempty"`
	ProviderUsed        string   `json:"provider_used"`
	ModelUsed           string   `json:"model_used"`
	PromptTokens        int      `json:"prompt_tokens"`
	CompletionTokens    int      `json:"completion_tokens"`
	EstimatedCostUSD    float64  `json:"estimated_cost_usd"`
	PIIEntitiesRedacted []string `json:"pii_entities_redacted"`
	PIIRedactionCount   int      `json:"pii_redaction_count"`
	LatencyMS           float64  `json:"latency_ms"`
	FallbackTriggered   bool     `json:"fallback_triggered"`
	FallbackReason      string   `json:"fallback_reason,omitempty"`
	Status              string   `json:"status"`
	ErrorMessage        string   `json:"error_message,omitempty"`
}

// UTCTimestamp formats t as the gateway's canonical wire timestamp.
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
