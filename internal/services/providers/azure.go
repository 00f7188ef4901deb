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

// AzureOpenAIAdapter speaks the OpenAI chat dialect against an Azure
// deployment. The deployment name stands in for the model: whatever
// model the request names, the configured deployment serves it.
type AzureOpenAIAdapter struct {
	apiKey     string
	endpoint   string
	apiVersion string
	deployment string
	client     *http.Client
}

func NewAzureOpenAIAdapter(cfg config.AzureOpenAIConfig, timeout time.Duration) *AzureOpenAIAdapter {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}

	return &AzureOpenAIAdapter{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiVersion: apiVersion,
		deployment: cfg.Deployment,
		client:     newHTTPClient(timeout),
	}
}

func (a *AzureOpenAIAdapter) Name() string {
	return models.ProviderAzureOpenAI
}

func (a *AzureOpenAIAdapter) Available() bool {
	return a.apiKey != "" && a.endpoint != "" && a.deployment != ""
}

func (a *AzureOpenAIAdapter) DefaultModel() string {
	return a.deployment
}

func (a *AzureOpenAIAdapter) Complete(ctx context.Context, params *Params) (*Response, error) {
	// Azure routes by deployment, not model, so the body omits it.
	reqBody, err := json.Marshal(chatRequest{
		Messages:    params.Messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.endpoint, a.deployment, a.apiVersion)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call azure openai: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, fmt.Errorf("azure openai returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("azure openai API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("azure openai returned no choices")
	}

	modelUsed := apiResp.Model
	if modelUsed == "" {
		modelUsed = a.deployment
	}

	return &Response{
		Content:          apiResp.Choices[0].Message.Content,
		ModelUsed:        modelUsed,
		PromptTokens:     apiResp.Usage.PromptTokens,
		CompletionTokens: apiResp.Usage.CompletionTokens,
	}, nil
}
