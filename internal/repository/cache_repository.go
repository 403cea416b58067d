package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// ResultCache caches finished timetable results in Redis so status polling
// and exports do not hit Postgres on every request. A nil client degrades to
// a pass-through.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResultCache constructs the cache with the given TTL.
func NewResultCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

func resultKey(runID string) string {
	return "timetable:result:" + runID
}

// Get returns the cached result for a run, or ErrCacheMiss.
func (r *ResultCache) Get(ctx context.Context, runID string) (*models.TimetableResult, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, resultKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get result %s: %w", runID, err)
	}
	var result models.TimetableResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal cached result %s: %w", runID, err)
	}
	return &result, nil
}

// Set stores the result under the run key with the configured TTL.
func (r *ResultCache) Set(ctx context.Context, result *models.TimetableResult) error {
	if r.client == nil || result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", result.RunID, err)
	}
	if err := r.client.Set(ctx, resultKey(result.RunID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set result %s: %w", result.RunID, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *ResultCache) Close() error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil {
		r.logger.Warn("failed to close redis client", zap.Error(err))
		return err
	}
	return nil
}
