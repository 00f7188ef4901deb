package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
)

type GeminiAdapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func NewGeminiAdapter(cfg config.GeminiConfig, timeout time.Duration) *GeminiAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}

	return &GeminiAdapter{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		client:       newHTTPClient(timeout),
	}
}

func (a *GeminiAdapter) Name() string {
	return models.ProviderGemini
}

func (a *GeminiAdapter) Available() bool {
	return a.apiKey != ""
}

func (a *GeminiAdapter) DefaultModel() string {
	return a.defaultModel
}

func (a *GeminiAdapter) Complete(ctx context.Context, params *Params) (*Response, error) {
	model := params.Model
	if model == "" {
		model = a.defaultModel
	}

	system, turns := splitSystem(params.Messages)

	apiReq := geminiRequest{}
	apiReq.GenerationConfig.MaxOutputTokens = params.MaxTokens
	apiReq.GenerationConfig.Temperature = params.Temperature
	if system != "" {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range turns {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		apiReq.Contents = append(apiReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		a.baseURL, model, url.QueryEscape(a.apiKey))

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiError
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, fmt.Errorf("gemini returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var content strings.Builder
	for _, part := range apiResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	// Older API versions omit usage metadata; fall back to estimates so
	// budget accounting never sees zero for a non-empty exchange.
	promptTokens := apiResp.UsageMetadata.PromptTokenCount
	if promptTokens == 0 {
		promptTokens = EstimatePromptTokens(params.Messages)
	}
	completionTokens := apiResp.UsageMetadata.CandidatesTokenCount
	if completionTokens == 0 {
		completionTokens = EstimateTokens(content.String())
	}

	return &Response{
		Content:          content.String(),
		ModelUsed:        model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}
