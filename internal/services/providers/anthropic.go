package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
)

const anthropicVersion = "2023-06-01"

type AnthropicAdapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

type anthropicRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	System      string           `json:"system,omitempty"`
	Messages    []models.Message `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewAnthropicAdapter(cfg config.AnthropicConfig, timeout time.Duration) *AnthropicAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-6"
	}

	return &AnthropicAdapter{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		client:       newHTTPClient(timeout),
	}
}

func (a *AnthropicAdapter) Name() string {
	return models.ProviderAnthropic
}

func (a *AnthropicAdapter) Available() bool {
	return a.apiKey != ""
}

func (a *AnthropicAdapter) DefaultModel() string {
	return a.defaultModel
}

func (a *AnthropicAdapter) Complete(ctx context.Context, params *Params) (*Response, error) {
	model := params.Model
	if model == "" {
		model = a.defaultModel
	}

	system, turns := splitSystem(params.Messages)
	reqBody, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		System:      system,
		Messages:    turns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call anthropic: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, fmt.Errorf("anthropic returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	modelUsed := apiResp.Model
	if modelUsed == "" {
		modelUsed = model
	}

	return &Response{
		Content:          content.String(),
		ModelUsed:        modelUsed,
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
	}, nil
}
