package di

import (
	govadapters "stock_history/internal/feature/governor/adapters"
	"stock_history/internal/feature/governor/usecase"
	"stock_history/internal/platform/statestore"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// StateStoreRedis selects the Redis-backed governance record.
const StateStoreRedis = "redis"

// NewStateRepository creates a StateRepository implementation.
// When Redis is requested and available, it returns a Redis-backed implementation.
// Otherwise, it falls back to the database.
func NewStateRepository(kind string, rdb *redis.Client, key string, db *gorm.DB) usecase.StateRepository {
	if kind == StateStoreRedis && rdb != nil {
		return statestore.NewStateRedis(rdb, key, 0)
	}
	return govadapters.NewStateRepository(db)
}
