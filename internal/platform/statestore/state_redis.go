// Package statestore keeps the governor's durable record in Redis.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stock_history/internal/feature/governor/domain/entity"
	"stock_history/internal/feature/governor/usecase"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps yesterday's record around long enough to be inspected after rollover.
const DefaultTTL = 72 * time.Hour

// StateRedis implements usecase.StateRepository using Redis.
type StateRedis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ usecase.StateRepository = (*StateRedis)(nil)

// NewStateRedis creates a new StateRedis instance.
func NewStateRedis(client *redis.Client, key string, ttl time.Duration) *StateRedis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StateRedis{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Load returns the stored record, or nil when the key does not exist.
func (r *StateRedis) Load(ctx context.Context) (*entity.State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var state entity.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal governor state: %w", err)
	}
	if state.Tickers == nil {
		state.Tickers = map[string]int{}
	}
	return &state, nil
}

// Save overwrites the record.
func (r *StateRedis) Save(ctx context.Context, state entity.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal governor state: %w", err)
	}
	return r.client.Set(ctx, r.key, data, r.ttl).Err()
}
