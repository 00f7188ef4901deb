// Package budget enforces per-team spend limits over daily and monthly
// windows. Windows are keyed by UTC calendar date so every gateway
// instance agrees on the rollover boundary.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/amerfu/aigw/internal/models"
)

// CheckResult is the outcome of a pre-flight budget check.
type CheckResult struct {
	Allowed bool
	// Reason is set when the check denies. Daily exhaustion is reported
	// before monthly when both windows are over.
	Reason string
}

// Store tracks team spend. Implementations must be safe for concurrent
// use by request handlers.
type Store interface {
	// Check reports whether a request with the given estimated cost
	// fits both windows. It does not reserve anything.
	Check(ctx context.Context, teamID string, estimatedCost float64) (*CheckResult, error)

	// Record commits the actual cost of a completed request.
	Record(ctx context.Context, teamID string, actualCost float64) error

	// Get returns the team's current budget view, creating the team
	// with default limits if it has not been seen before.
	Get(ctx context.Context, teamID string) (*models.TeamBudget, error)

	// SetLimits overrides one or both limits. A nil pointer leaves the
	// corresponding limit unchanged. Usage is preserved.
	SetLimits(ctx context.Context, teamID string, dailyUSD, monthlyUSD *float64) (*models.TeamBudget, error)

	// All returns the budget view of every team the store has seen.
	All(ctx context.Context) ([]*models.TeamBudget, error)

	Close() error
}

// Window key retention for shared stores. Daily keys outlive their day
// so late commits still land; monthly keys outlive their month.
const (
	dailyKeyTTL   = 3 * 24 * time.Hour
	monthlyKeyTTL = 40 * 24 * time.Hour
)

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func deniedDaily(used, estimated, limit float64) string {
	return fmt.Sprintf("daily budget exceeded: $%.4f used + $%.4f estimated > $%.2f limit", used, estimated, limit)
}

func deniedMonthly(used, estimated, limit float64) string {
	return fmt.Sprintf("monthly budget exceeded: $%.4f used + $%.4f estimated > $%.2f limit", used, estimated, limit)
}
