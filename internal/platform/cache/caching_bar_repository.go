// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"
)

// BarStore is the repository surface the decorator wraps.
type BarStore interface {
	usecase.BarRepository
	usecase.BarAdmin
}

// CachingBarRepository decorates a BarStore with a Redis read-through cache for window queries.
// Writes and deletes go to the store first, then bump the symbol's generation and drop its cached windows.
// Window keys embed the generation read before the store query, so a fill that raced a write
// lands under a generation no later reader uses.
type CachingBarRepository struct {
	inner     BarStore
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
}

var (
	_ usecase.BarRepository = (*CachingBarRepository)(nil)
	_ usecase.BarAdmin      = (*CachingBarRepository)(nil)
)

// NewCachingBarRepository decorates a BarStore with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "bars".
func NewCachingBarRepository(rdb *redis.Client, ttl time.Duration, inner BarStore, namespace string) *CachingBarRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "bars"
	}
	return &CachingBarRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		now:       time.Now,
	}
}

// Upsert writes bars and invalidates related cache entries.
func (c *CachingBarRepository) Upsert(ctx context.Context, bars []entity.Bar, source, adjustment string) (int, error) {
	n, err := c.inner.Upsert(ctx, bars, source, adjustment)
	if err != nil {
		return 0, err
	}
	if c.rdb == nil || len(bars) == 0 {
		return n, nil
	}

	bumped := map[string]struct{}{}
	seen := map[string]struct{}{}
	for _, b := range bars {
		if _, ok := bumped[b.Symbol]; !ok {
			bumped[b.Symbol] = struct{}{}
			_ = c.rdb.Incr(ctx, c.generationKey(b.Symbol)).Err()
		}
		prefix := c.cacheKeyPrefix(b.Symbol, string(b.Resolution))
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		_ = c.deleteByPattern(ctx, prefix+"*") // Best effort: don't fail if cache deletion fails
	}
	return n, nil
}

// Query retrieves bars, checking cache first then falling back to the database.
func (c *CachingBarRepository) Query(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error) {
	if c.rdb == nil {
		return c.inner.Query(ctx, symbol, res, start, end)
	}

	gen, err := c.rdb.Get(ctx, c.generationKey(symbol)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return c.inner.Query(ctx, symbol, res, start, end)
	}
	key := c.cacheKey(symbol, string(res), gen, start, end)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Bar
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.Query(ctx, symbol, res, start, end)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.expiry()).Err()
	}
	return out, nil
}

// DeleteSymbol deletes all rows of a symbol and drops its cached windows.
func (c *CachingBarRepository) DeleteSymbol(ctx context.Context, symbol string) (int64, error) {
	n, err := c.inner.DeleteSymbol(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if c.rdb != nil {
		_ = c.rdb.Incr(ctx, c.generationKey(symbol)).Err()
		_ = c.deleteByPattern(ctx, fmt.Sprintf("%s:%s:*", c.namespace, safe(symbol)))
	}
	return n, nil
}

func (c *CachingBarRepository) Stats(ctx context.Context) ([]entity.SymbolHealth, error) {
	return c.inner.Stats(ctx)
}

func (c *CachingBarRepository) ListSymbols(ctx context.Context) ([]string, error) {
	return c.inner.ListSymbols(ctx)
}

// expiry caps the ttl at the next UTC midnight, when every window shifts by one day.
func (c *CachingBarRepository) expiry() time.Duration {
	ttl := c.ttl
	if d := TimeUntilNext(c.now(), 0, time.UTC); d < ttl {
		ttl = d
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// cacheKey generates a cache key for a specific window query at a symbol generation.
func (c *CachingBarRepository) cacheKey(symbol, res string, gen int64, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:g%d",
		c.namespace,
		safe(symbol),
		safe(res),
		start.Unix(),
		end.Unix(),
		gen,
	)
}

// generationKey is bumped on every write or delete of the symbol.
// Symbols are upper case, so "gen" never collides with a symbol segment.
func (c *CachingBarRepository) generationKey(symbol string) string {
	return fmt.Sprintf("%s:gen:%s", c.namespace, safe(symbol))
}

// cacheKeyPrefix generates a prefix for invalidating related cache entries.
func (c *CachingBarRepository) cacheKeyPrefix(symbol, res string) string {
	return fmt.Sprintf("%s:%s:%s:",
		c.namespace,
		safe(symbol),
		safe(res),
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingBarRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
