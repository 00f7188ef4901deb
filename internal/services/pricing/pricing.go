// Package pricing maps token counts to USD cost per provider and model.
// The table ships as an embedded YAML resource so deployments can
// hot-swap it without a code change.
package pricing

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var embeddedTable []byte

// Rate holds USD per 1K tokens for one model row.
type Rate struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Table is a two-level provider -> model -> rate lookup. Each provider
// carries a "default" row used for models not listed explicitly.
type Table map[string]map[string]Rate

// fallbackRate matches the most expensive flagship tier so unknown
// providers are never under-charged.
var fallbackRate = Rate{Input: 0.015, Output: 0.075}

// Load returns the embedded pricing table, or the table at path when
// path is non-empty.
func Load(path string) (Table, error) {
	data := embeddedTable
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read pricing table: %w", err)
		}
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse pricing table: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("pricing table is empty")
	}
	return table, nil
}

// Rate resolves the rate for a provider/model pair, falling back to the
// provider's default row, then to the system-wide fallback.
func (t Table) Rate(provider, model string) Rate {
	models, ok := t[provider]
	if !ok {
		return fallbackRate
	}
	if rate, ok := models[model]; ok {
		return rate
	}
	if rate, ok := models["default"]; ok {
		return rate
	}
	return fallbackRate
}

// EstimateCost computes the USD cost of a completion call.
func (t Table) EstimateCost(provider, model string, promptTokens, completionTokens int) float64 {
	rate := t.Rate(provider, model)
	return float64(promptTokens)/1000*rate.Input + float64(completionTokens)/1000*rate.Output
}
