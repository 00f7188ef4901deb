// Package routing walks the provider priority list, skipping providers
// that are unconfigured or circuit-broken, and falls back until one
// succeeds.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/services/circuitbreaker"
	"github.com/amerfu/aigw/internal/services/providers"
)

// Skip reasons recorded when a provider is never attempted.
const (
	reasonNotConfigured = "not configured"
	reasonCircuitOpen   = "circuit breaker open"
)

// Result is a successful routing outcome. FallbackTriggered is set
// when the serving provider is not the first one actually attempted;
// providers skipped without an attempt do not count.
type Result struct {
	Response          *providers.Response
	Provider          string
	FallbackTriggered bool
	FallbackReason    string
}

// GatewayError reports that no provider could serve the request, with
// the per-provider failure or skip reason.
type GatewayError struct {
	ProviderErrors map[string]string
}

func (e *GatewayError) Error() string {
	names := make([]string, 0, len(e.ProviderErrors))
	for name := range e.ProviderErrors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.ProviderErrors[name]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

type Router struct {
	adapters map[string]providers.Adapter
	breakers map[string]*circuitbreaker.Breaker
	priority []string
	logger   *zap.Logger
}

// New builds a router over the given adapters. Priority names without
// a matching adapter are ignored; each adapter gets its own breaker.
func New(adapters []providers.Adapter, priority []string, logger *zap.Logger) *Router {
	byName := make(map[string]providers.Adapter, len(adapters))
	breakers := make(map[string]*circuitbreaker.Breaker, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
		breakers[a.Name()] = circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultCooldown)
	}

	var order []string
	for _, name := range priority {
		if _, ok := byName[name]; ok {
			order = append(order, name)
		}
	}

	return &Router{
		adapters: byName,
		breakers: breakers,
		priority: order,
		logger:   logger.Named("router"),
	}
}

// Route tries providers in priority order, preferred first when set,
// and returns the first success.
func (r *Router) Route(ctx context.Context, params *providers.Params, preferred string) (*Result, error) {
	order := r.order(preferred)

	providerErrors := make(map[string]string)
	firstTried := ""
	firstError := ""

	for _, name := range order {
		adapter := r.adapters[name]
		if !adapter.Available() {
			providerErrors[name] = reasonNotConfigured
			continue
		}

		breaker := r.breakers[name]
		if breaker.IsOpen() {
			providerErrors[name] = reasonCircuitOpen
			r.logger.Debug("Skipping circuit-broken provider", zap.String("provider", name))
			continue
		}

		resp, err := adapter.Complete(ctx, params)
		if err != nil {
			providerErrors[name] = err.Error()
			if firstTried == "" {
				firstTried = name
				firstError = err.Error()
			}

			// A canceled request says nothing about provider health.
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				breaker.RecordFailure(err.Error())
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			r.logger.Warn("Provider attempt failed",
				zap.String("provider", name),
				zap.Error(err))
			continue
		}

		breaker.RecordSuccess()

		result := &Result{
			Response: resp,
			Provider: name,
		}
		if firstTried != "" && firstTried != name {
			result.FallbackTriggered = true
			result.FallbackReason = fmt.Sprintf("%s failed: %s", firstTried, firstError)
		}
		return result, nil
	}

	return nil, &GatewayError{ProviderErrors: providerErrors}
}

// order returns the priority list with preferred moved to the front.
func (r *Router) order(preferred string) []string {
	if preferred == "" {
		return r.priority
	}

	order := make([]string, 0, len(r.priority)+1)
	if _, ok := r.adapters[preferred]; ok {
		order = append(order, preferred)
	}
	for _, name := range r.priority {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}

// ProviderStatus is the status view of one provider.
type ProviderStatus struct {
	Provider   string                  `json:"provider"`
	Configured bool                    `json:"configured"`
	Circuit    circuitbreaker.Snapshot `json:"circuit"`
}

// Status reports every adapter in priority order without mutating any
// breaker.
func (r *Router) Status() []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(r.priority))
	for _, name := range r.priority {
		statuses = append(statuses, ProviderStatus{
			Provider:   name,
			Configured: r.adapters[name].Available(),
			Circuit:    r.breakers[name].Snapshot(),
		})
	}
	return statuses
}

// Adapter returns the named adapter, for model defaulting.
func (r *Router) Adapter(name string) (providers.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Breaker exposes the named provider's breaker for tests and status.
func (r *Router) Breaker(name string) (*circuitbreaker.Breaker, bool) {
	b, ok := r.breakers[name]
	return b, ok
}
