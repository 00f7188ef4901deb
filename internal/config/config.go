package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	PII       PIIConfig       `mapstructure:"pii"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type AuthConfig struct {
	// APIKeyHeader is the header carrying the tenant credential.
	APIKeyHeader string `mapstructure:"api_key_header"`
	// TeamKeys maps API keys to team ids.
	TeamKeys map[string]string `mapstructure:"team_keys"`
	// MasterKey grants admin access to budget management endpoints.
	MasterKey string `mapstructure:"master_key"`
	// SecretKey signs admin JWTs minted by the CLI.
	SecretKey string `mapstructure:"secret_key"`
}

type ProvidersConfig struct {
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	AzureOpenAI AzureOpenAIConfig `mapstructure:"azure_openai"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	// Timeout applies to every outbound provider call.
	Timeout time.Duration `mapstructure:"timeout"`
}

type AnthropicConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultModel string `mapstructure:"default_model"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	OrgID        string `mapstructure:"org_id"`
	DefaultModel string `mapstructure:"default_model"`
}

type AzureOpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	APIVersion string `mapstructure:"api_version"`
	Deployment string `mapstructure:"deployment"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultModel string `mapstructure:"default_model"`
}

type RoutingConfig struct {
	// Priority is the ordered provider fallback list.
	Priority []string `mapstructure:"priority"`
}

type PIIConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Entities []string       `mapstructure:"entities"`
	Presidio PresidioConfig `mapstructure:"presidio"`
}

type PresidioConfig struct {
	// AnalyzerURL enables the rich detection backend when set.
	AnalyzerURL    string        `mapstructure:"analyzer_url"`
	Language       string        `mapstructure:"language"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type AuditConfig struct {
	LogFile        string        `mapstructure:"log_file"`
	SIEMWebhookURL string        `mapstructure:"siem_webhook_url"`
	SIEMTimeout    time.Duration `mapstructure:"siem_timeout"`
}

type BudgetConfig struct {
	DefaultDailyUSD   float64 `mapstructure:"default_daily_usd"`
	DefaultMonthlyUSD float64 `mapstructure:"default_monthly_usd"`
}

type RedisConfig struct {
	// URL enables the shared redis budget store when set.
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/aigw")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown", "30s")

	// Auth defaults. The built-in keys mirror the team provisioning used
	// before key management moved behind the CLI.
	viper.SetDefault("auth.api_key_header", "X-API-Key")
	viper.SetDefault("auth.secret_key", "change-me-in-production-use-256-bit-random-string")
	viper.SetDefault("auth.team_keys", map[string]string{
		"sk-gateway-finance-001":     "finance-team",
		"sk-gateway-engineering-001": "engineering-team",
		"sk-gateway-marketing-001":   "marketing-team",
		"sk-gateway-default-001":     "default",
	})

	// Provider defaults
	viper.SetDefault("providers.timeout", "60s")
	viper.SetDefault("providers.anthropic.base_url", "https://api.anthropic.com")
	viper.SetDefault("providers.anthropic.default_model", "claude-sonnet-4-6")
	viper.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("providers.openai.default_model", "gpt-4o")
	viper.SetDefault("providers.azure_openai.api_version", "2024-02-01")
	viper.SetDefault("providers.azure_openai.deployment", "gpt-4o")
	viper.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("providers.gemini.default_model", "gemini-1.5-flash")

	// Routing defaults
	viper.SetDefault("routing.priority", []string{"anthropic", "openai", "azure_openai", "gemini"})

	// PII defaults
	viper.SetDefault("pii.enabled", true)
	viper.SetDefault("pii.entities", []string{
		"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "CREDIT_CARD",
		"US_SSN", "IP_ADDRESS", "LOCATION", "DATE_TIME",
	})
	viper.SetDefault("pii.presidio.language", "en")
	viper.SetDefault("pii.presidio.score_threshold", 0.35)
	viper.SetDefault("pii.presidio.timeout", "5s")

	// Audit defaults
	viper.SetDefault("audit.log_file", "audit_logs/gateway_audit.jsonl")
	viper.SetDefault("audit.siem_timeout", "3s")

	// Budget defaults
	viper.SetDefault("budget.default_daily_usd", 10.0)
	viper.SetDefault("budget.default_monthly_usd", 200.0)

	// Redis defaults
	viper.SetDefault("redis.db", 0)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "")

	// CORS defaults
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type", "X-API-Key"})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("cors.max_age", 300)
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Auth
	viper.BindEnv("auth.api_key_header", "API_KEY_HEADER")
	viper.BindEnv("auth.master_key", "AIGW_MASTER_KEY")
	viper.BindEnv("auth.secret_key", "AIGW_SECRET_KEY")

	// Providers
	viper.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("providers.openai.org_id", "OPENAI_ORG_ID")
	viper.BindEnv("providers.azure_openai.api_key", "AZURE_OPENAI_API_KEY")
	viper.BindEnv("providers.azure_openai.endpoint", "AZURE_OPENAI_ENDPOINT")
	viper.BindEnv("providers.azure_openai.api_version", "AZURE_OPENAI_API_VERSION")
	viper.BindEnv("providers.azure_openai.deployment", "AZURE_OPENAI_DEPLOYMENT")
	viper.BindEnv("providers.gemini.api_key", "GOOGLE_API_KEY")

	// PII
	viper.BindEnv("pii.enabled", "PII_REDACTION_ENABLED")
	viper.BindEnv("pii.presidio.analyzer_url", "PRESIDIO_ANALYZER_URL")

	// Audit
	viper.BindEnv("audit.log_file", "AUDIT_LOG_FILE")
	viper.BindEnv("audit.siem_webhook_url", "SIEM_WEBHOOK_URL")

	// Budget
	viper.BindEnv("budget.default_daily_usd", "DEFAULT_TEAM_DAILY_BUDGET_USD")
	viper.BindEnv("budget.default_monthly_usd", "DEFAULT_TEAM_MONTHLY_BUDGET_USD")

	// Redis
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Logging
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")
}
