package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	assert.Equal(t, "finance-team", cfg.Auth.TeamKeys["sk-gateway-finance-001"])
	assert.Equal(t, []string{"anthropic", "openai", "azure_openai", "gemini"}, cfg.Routing.Priority)
	assert.True(t, cfg.PII.Enabled)
	assert.Contains(t, cfg.PII.Entities, "EMAIL_ADDRESS")
	assert.Equal(t, "audit_logs/gateway_audit.jsonl", cfg.Audit.LogFile)
	assert.InDelta(t, 10.0, cfg.Budget.DefaultDailyUSD, 1e-9)
	assert.InDelta(t, 200.0, cfg.Budget.DefaultMonthlyUSD, 1e-9)
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers.Anthropic.BaseURL)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	configYAML := `
server:
  port: 9090
budget:
  default_daily_usd: 5.5
routing:
  priority: ["openai", "anthropic"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 5.5, cfg.Budget.DefaultDailyUSD, 1e-9)
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.Routing.Priority)

	t.Run("unset values keep defaults", func(t *testing.T) {
		assert.InDelta(t, 200.0, cfg.Budget.DefaultMonthlyUSD, 1e-9)
		assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	})
}
