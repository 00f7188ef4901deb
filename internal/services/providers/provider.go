// Package providers holds the upstream completion adapters. Every
// adapter normalizes its provider's wire format into the same response
// shape so the router can treat providers interchangeably.
package providers

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/amerfu/aigw/internal/models"
)

// Params is the normalized upstream request. Messages arrive already
// redacted; adapters must not log their content.
type Params struct {
	Messages    []models.Message
	Model       string // empty selects the adapter default
	MaxTokens   int
	Temperature float64
}

// Response is the normalized upstream result.
type Response struct {
	Content          string
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
}

// Adapter is one upstream completion service.
type Adapter interface {
	Name() string
	// Available reports whether the adapter has credentials configured.
	Available() bool
	DefaultModel() string
	Complete(ctx context.Context, params *Params) (*Response, error)
}

// ErrorResponse is the error envelope shared by the OpenAI-compatible
// providers.
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// EstimateTokens approximates the token count of text as 1.3 tokens
// per whitespace word, rounded up. Used for pre-flight cost checks and
// for providers that do not report usage.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.3))
}

// EstimatePromptTokens sums the token estimate over all messages.
func EstimatePromptTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// splitSystem separates system messages from the conversation turns
// for providers that carry the system prompt out of band. Multiple
// system messages are joined in order.
func splitSystem(messages []models.Message) (system string, rest []models.Message) {
	var parts []string
	for _, m := range messages {
		if m.Role == "system" {
			parts = append(parts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}
