package budget

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
)

// teamWindow holds one team's live counters. Rollover is lazy: counters
// reset the first time the team is touched in a new UTC day or month.
type teamWindow struct {
	dailyLimit   float64
	monthlyLimit float64

	day        string
	month      string
	dailyUsed  float64
	monthUsed  float64
	dayCount   int
	monthCount int

	lastUpdated time.Time
}

// MemoryStore is the single-instance budget store. State does not
// survive a restart; deployments that need shared or durable counters
// use the redis store instead.
type MemoryStore struct {
	mu     sync.Mutex
	teams  map[string]*teamWindow
	cfg    config.BudgetConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewMemoryStore(cfg config.BudgetConfig, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		teams:  make(map[string]*teamWindow),
		cfg:    cfg,
		logger: logger.Named("budget"),
		now:    time.Now,
	}
}

// window returns the team's counters rolled forward to now. Callers
// must hold mu.
func (s *MemoryStore) window(teamID string, now time.Time) *teamWindow {
	w, ok := s.teams[teamID]
	if !ok {
		w = &teamWindow{
			dailyLimit:   s.cfg.DefaultDailyUSD,
			monthlyLimit: s.cfg.DefaultMonthlyUSD,
			day:          dayKey(now),
			month:        monthKey(now),
			lastUpdated:  now.UTC(),
		}
		s.teams[teamID] = w
		return w
	}

	if day := dayKey(now); w.day != day {
		w.day = day
		w.dailyUsed = 0
		w.dayCount = 0
	}
	if month := monthKey(now); w.month != month {
		w.month = month
		w.monthUsed = 0
		w.monthCount = 0
	}
	return w
}

func (s *MemoryStore) Check(_ context.Context, teamID string, estimatedCost float64) (*CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.window(teamID, s.now())
	if w.dailyUsed+estimatedCost > w.dailyLimit {
		return &CheckResult{Reason: deniedDaily(w.dailyUsed, estimatedCost, w.dailyLimit)}, nil
	}
	if w.monthUsed+estimatedCost > w.monthlyLimit {
		return &CheckResult{Reason: deniedMonthly(w.monthUsed, estimatedCost, w.monthlyLimit)}, nil
	}
	return &CheckResult{Allowed: true}, nil
}

func (s *MemoryStore) Record(_ context.Context, teamID string, actualCost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.window(teamID, now)
	w.dailyUsed += actualCost
	w.monthUsed += actualCost
	w.dayCount++
	w.monthCount++
	w.lastUpdated = now.UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, teamID string) (*models.TeamBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view(teamID, s.window(teamID, s.now())), nil
}

func (s *MemoryStore) SetLimits(_ context.Context, teamID string, dailyUSD, monthlyUSD *float64) (*models.TeamBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.window(teamID, now)
	if dailyUSD != nil {
		w.dailyLimit = *dailyUSD
	}
	if monthlyUSD != nil {
		w.monthlyLimit = *monthlyUSD
	}
	w.lastUpdated = now.UTC()

	s.logger.Info("Budget limits updated",
		zap.String("team_id", teamID),
		zap.Float64("daily_limit_usd", w.dailyLimit),
		zap.Float64("monthly_limit_usd", w.monthlyLimit))

	return s.view(teamID, w), nil
}

func (s *MemoryStore) All(_ context.Context) ([]*models.TeamBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.teams))
	for id := range s.teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	budgets := make([]*models.TeamBudget, 0, len(ids))
	for _, id := range ids {
		budgets = append(budgets, s.view(id, s.window(id, now)))
	}
	return budgets, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) view(teamID string, w *teamWindow) *models.TeamBudget {
	return &models.TeamBudget{
		TeamID:              teamID,
		DailyLimitUSD:       w.dailyLimit,
		MonthlyLimitUSD:     w.monthlyLimit,
		DailyUsedUSD:        w.dailyUsed,
		MonthlyUsedUSD:      w.monthUsed,
		DailyRemainingUSD:   maxZero(w.dailyLimit - w.dailyUsed),
		MonthlyRemainingUSD: maxZero(w.monthlyLimit - w.monthUsed),
		RequestCountToday:   w.dayCount,
		RequestCountMonth:   w.monthCount,
		LastUpdated:         models.UTCTimestamp(w.lastUpdated),
	}
}

func maxZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
