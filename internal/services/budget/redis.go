package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
)

const (
	teamsSetKey    = "aigw:budget:teams"
	limitsKeyFmt   = "aigw:budget:limits:%s"   // hash: daily, monthly, last_updated
	spendKeyFmt    = "aigw:budget:spend:%s:%s" // team, window key
	requestsKeyFmt = "aigw:budget:reqs:%s:%s"  // team, window key
)

// RedisStore keeps budget counters in redis so several gateway
// instances share one view of team spend. Spend is accumulated with
// INCRBYFLOAT under UTC-dated keys; rollover is implicit because a new
// day or month addresses a fresh key.
type RedisStore struct {
	client *redis.Client
	cfg    config.BudgetConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, cfg config.BudgetConfig, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		cfg:    cfg,
		logger: logger.Named("budget"),
		now:    time.Now,
	}
}

func (s *RedisStore) Check(ctx context.Context, teamID string, estimatedCost float64) (*CheckResult, error) {
	now := s.now()
	dailyUsed, monthUsed, err := s.spend(ctx, teamID, now)
	if err != nil {
		return nil, err
	}
	dailyLimit, monthlyLimit, err := s.limits(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if dailyUsed+estimatedCost > dailyLimit {
		return &CheckResult{Reason: deniedDaily(dailyUsed, estimatedCost, dailyLimit)}, nil
	}
	if monthUsed+estimatedCost > monthlyLimit {
		return &CheckResult{Reason: deniedMonthly(monthUsed, estimatedCost, monthlyLimit)}, nil
	}
	return &CheckResult{Allowed: true}, nil
}

func (s *RedisStore) Record(ctx context.Context, teamID string, actualCost float64) error {
	now := s.now()
	dailySpend := fmt.Sprintf(spendKeyFmt, teamID, dayKey(now))
	monthSpend := fmt.Sprintf(spendKeyFmt, teamID, monthKey(now))
	dailyReqs := fmt.Sprintf(requestsKeyFmt, teamID, dayKey(now))
	monthReqs := fmt.Sprintf(requestsKeyFmt, teamID, monthKey(now))

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, teamsSetKey, teamID)
		pipe.IncrByFloat(ctx, dailySpend, actualCost)
		pipe.Expire(ctx, dailySpend, dailyKeyTTL)
		pipe.IncrByFloat(ctx, monthSpend, actualCost)
		pipe.Expire(ctx, monthSpend, monthlyKeyTTL)
		pipe.Incr(ctx, dailyReqs)
		pipe.Expire(ctx, dailyReqs, dailyKeyTTL)
		pipe.Incr(ctx, monthReqs)
		pipe.Expire(ctx, monthReqs, monthlyKeyTTL)
		pipe.HSet(ctx, fmt.Sprintf(limitsKeyFmt, teamID), "last_updated", models.UTCTimestamp(now))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record spend for team %s: %w", teamID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, teamID string) (*models.TeamBudget, error) {
	if err := s.client.SAdd(ctx, teamsSetKey, teamID).Err(); err != nil {
		return nil, fmt.Errorf("failed to register team %s: %w", teamID, err)
	}
	return s.view(ctx, teamID, s.now())
}

func (s *RedisStore) SetLimits(ctx context.Context, teamID string, dailyUSD, monthlyUSD *float64) (*models.TeamBudget, error) {
	now := s.now()
	limitsKey := fmt.Sprintf(limitsKeyFmt, teamID)

	fields := map[string]interface{}{"last_updated": models.UTCTimestamp(now)}
	if dailyUSD != nil {
		fields["daily"] = *dailyUSD
	}
	if monthlyUSD != nil {
		fields["monthly"] = *monthlyUSD
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, teamsSetKey, teamID)
		pipe.HSet(ctx, limitsKey, fields)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set limits for team %s: %w", teamID, err)
	}

	s.logger.Info("Budget limits updated",
		zap.String("team_id", teamID))

	return s.view(ctx, teamID, now)
}

func (s *RedisStore) All(ctx context.Context) ([]*models.TeamBudget, error) {
	ids, err := s.client.SMembers(ctx, teamsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	now := s.now()
	budgets := make([]*models.TeamBudget, 0, len(ids))
	for _, id := range ids {
		b, err := s.view(ctx, id, now)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) spend(ctx context.Context, teamID string, now time.Time) (daily, monthly float64, err error) {
	vals, err := s.client.MGet(ctx,
		fmt.Sprintf(spendKeyFmt, teamID, dayKey(now)),
		fmt.Sprintf(spendKeyFmt, teamID, monthKey(now)),
	).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read spend for team %s: %w", teamID, err)
	}
	return parseFloat(vals[0]), parseFloat(vals[1]), nil
}

func (s *RedisStore) counts(ctx context.Context, teamID string, now time.Time) (daily, monthly int, err error) {
	vals, err := s.client.MGet(ctx,
		fmt.Sprintf(requestsKeyFmt, teamID, dayKey(now)),
		fmt.Sprintf(requestsKeyFmt, teamID, monthKey(now)),
	).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read request counts for team %s: %w", teamID, err)
	}
	return int(parseFloat(vals[0])), int(parseFloat(vals[1])), nil
}

func (s *RedisStore) limits(ctx context.Context, teamID string) (daily, monthly float64, err error) {
	fields, err := s.client.HGetAll(ctx, fmt.Sprintf(limitsKeyFmt, teamID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read limits for team %s: %w", teamID, err)
	}

	daily = s.cfg.DefaultDailyUSD
	monthly = s.cfg.DefaultMonthlyUSD
	if v, ok := fields["daily"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			daily = f
		}
	}
	if v, ok := fields["monthly"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			monthly = f
		}
	}
	return daily, monthly, nil
}

func (s *RedisStore) view(ctx context.Context, teamID string, now time.Time) (*models.TeamBudget, error) {
	dailyUsed, monthUsed, err := s.spend(ctx, teamID, now)
	if err != nil {
		return nil, err
	}
	dayCount, monthCount, err := s.counts(ctx, teamID, now)
	if err != nil {
		return nil, err
	}
	dailyLimit, monthlyLimit, err := s.limits(ctx, teamID)
	if err != nil {
		return nil, err
	}

	lastUpdated, err := s.client.HGet(ctx, fmt.Sprintf(limitsKeyFmt, teamID), "last_updated").Result()
	if err == redis.Nil {
		lastUpdated = models.UTCTimestamp(now)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read last update for team %s: %w", teamID, err)
	}

	return &models.TeamBudget{
		TeamID:              teamID,
		DailyLimitUSD:       dailyLimit,
		MonthlyLimitUSD:     monthlyLimit,
		DailyUsedUSD:        dailyUsed,
		MonthlyUsedUSD:      monthUsed,
		DailyRemainingUSD:   maxZero(dailyLimit - dailyUsed),
		MonthlyRemainingUSD: maxZero(monthlyLimit - monthUsed),
		RequestCountToday:   dayCount,
		RequestCountMonth:   monthCount,
		LastUpdated:         lastUpdated,
	}, nil
}

func parseFloat(v interface{}) float64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0
	}
	return f
}
