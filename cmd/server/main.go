package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/gateway"
	"github.com/amerfu/aigw/internal/handlers"
	"github.com/amerfu/aigw/internal/logger"
	"github.com/amerfu/aigw/internal/middleware"
	"github.com/amerfu/aigw/internal/router"
	"github.com/amerfu/aigw/internal/services/audit"
	"github.com/amerfu/aigw/internal/services/budget"
	"github.com/amerfu/aigw/internal/services/pricing"
	"github.com/amerfu/aigw/internal/services/providers"
	"github.com/amerfu/aigw/internal/services/redact"
	"github.com/amerfu/aigw/internal/services/routing"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	adapters := []providers.Adapter{
		providers.NewAnthropicAdapter(cfg.Providers.Anthropic, cfg.Providers.Timeout),
		providers.NewOpenAIAdapter(cfg.Providers.OpenAI, cfg.Providers.Timeout),
		providers.NewAzureOpenAIAdapter(cfg.Providers.AzureOpenAI, cfg.Providers.Timeout),
		providers.NewGeminiAdapter(cfg.Providers.Gemini, cfg.Providers.Timeout),
	}
	for _, a := range adapters {
		log.Info("Provider adapter registered",
			zap.String("provider", a.Name()),
			zap.Bool("configured", a.Available()))
	}

	table, err := pricing.Load("")
	if err != nil {
		return fmt.Errorf("failed to load pricing table: %w", err)
	}

	budgets, storeKind, err := newBudgetStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = budgets.Close() }()
	log.Info("Budget store ready", zap.String("store", storeKind))

	audits, err := audit.NewLogger(cfg.Audit, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	redactor := redact.New(cfg.PII, log)
	rt := routing.New(adapters, cfg.Routing.Priority, log)
	pipeline := gateway.NewPipeline(redactor, rt, table, budgets, audits, log)
	auth := middleware.NewAuthenticator(cfg.Auth, log)

	handler := router.New(cfg, router.Dependencies{
		Auth:        auth,
		Completions: handlers.NewCompletionsHandler(pipeline, log),
		Providers:   handlers.NewProvidersHandler(rt),
		Budget:      handlers.NewBudgetHandler(budgets, cfg.Auth.TeamKeys, log),
		Audit:       handlers.NewAuditHandler(audits, log),
		Health:      handlers.NewHealthHandler(rt, redactor, storeKind),
	}, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Gateway listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

// newBudgetStore selects the shared redis store when a redis URL is
// configured, otherwise the in-memory store.
func newBudgetStore(cfg *config.Config, log *zap.Logger) (budget.Store, string, error) {
	if cfg.Redis.URL == "" {
		return budget.NewMemoryStore(cfg.Budget, log), "memory", nil
	}

	opts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, "", fmt.Errorf("redis unreachable: %w", err)
	}
	return budget.NewRedisStore(client, cfg.Budget, log), "redis", nil
}
