// Package usecase implements the request governor that gates every upstream market-data call.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"stock_history/internal/feature/governor/domain/entity"
	"stock_history/internal/shared/ratelimiter"
)

const dateLayout = "2006-01-02"

// StateRepository persists the single governance record.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type StateRepository interface {
	// Load returns the stored record, or nil when nothing has been stored yet.
	Load(ctx context.Context) (*entity.State, error)
	Save(ctx context.Context, state entity.State) error
}

// Limits holds the fixed quotas enforced by the governor.
type Limits struct {
	DailyLimit         int     // local daily ceiling, kept below the provider's own limit
	PerKeyLimit        int     // daily ceiling per key (symbol)
	Burst              int     // token bucket capacity
	RatePerMinute      float64 // token bucket refill rate
	PowerSaveThreshold int     // remaining budget below which PowerSave is reported
}

// DefaultLimits returns the production quotas. The provider allows 1000 calls a day;
// the local ceiling keeps 150 of them in reserve.
func DefaultLimits() Limits {
	return Limits{
		DailyLimit:         850,
		PerKeyLimit:        30,
		Burst:              6,
		RatePerMinute:      18,
		PowerSaveThreshold: 150,
	}
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// Governor is the admission-control gate in front of the upstream provider.
// It is the sole mutator of the governance state; Allow runs refill, checks,
// counter increments and persistence as one critical section.
type Governor struct {
	mu     sync.Mutex
	repo   StateRepository
	limits Limits
	bucket *ratelimiter.TokenBucket
	state  entity.State
	now    func() time.Time
	logger *slog.Logger
}

// NewGovernor builds a governor and loads the persisted state.
// A load failure starts a fresh day instead of failing.
func NewGovernor(ctx context.Context, repo StateRepository, limits Limits, logger *slog.Logger, opts ...Option) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Governor{
		repo:   repo,
		limits: limits,
		bucket: ratelimiter.NewTokenBucket(limits.RatePerMinute, limits.Burst),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}

	now := g.now().UTC()
	g.state = entity.State{Date: now.Format(dateLayout), Tickers: map[string]int{}}

	saved, err := repo.Load(ctx)
	if err != nil {
		g.logger.Warn("failed to load governance state, starting fresh", "error", err)
		return g
	}
	if saved == nil {
		return g
	}
	g.bucket.Restore(saved.Tokens, saved.TokensUpdatedAt)
	if saved.Date == g.state.Date {
		g.state.DailyRequests = saved.DailyRequests
		if saved.Tickers != nil {
			g.state.Tickers = saved.Tickers
		}
	} else {
		g.logger.Info("new day: resetting governance budget", "previous", saved.Date, "today", g.state.Date)
	}
	return g
}

// Allow decides whether one upstream request for key may be issued now.
// On grant the counters are incremented, one token is consumed, and the state is
// persisted before returning. A persistence failure is logged and the grant stands.
func (g *Governor) Allow(ctx context.Context, key string) entity.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	g.rollover(now)

	if g.state.DailyRequests >= g.limits.DailyLimit {
		return entity.Decision{Reason: entity.ReasonDailyBudget, Kind: entity.KindDailyBudget}
	}
	used := g.state.Tickers[key]
	if used >= g.limits.PerKeyLimit {
		return entity.Decision{Reason: fmt.Sprintf("Ticker Limit (%s) Exceeded", key), Kind: entity.KindKeyBudget}
	}
	if !g.bucket.AllowAt(now) {
		return entity.Decision{Reason: entity.ReasonRateLimited, Kind: entity.KindRateLimited}
	}

	g.state.DailyRequests++
	g.state.Tickers[key] = used + 1
	g.state.Tokens = g.bucket.TokensAt(now)
	g.state.TokensUpdatedAt = now

	if err := g.repo.Save(ctx, g.snapshot()); err != nil {
		// Known consistency gap: the grant is kept in memory even though it was not persisted.
		g.logger.Error("failed to persist governance state", "key", key, "used", g.state.DailyRequests, "error", err)
	}
	return entity.Decision{Granted: true, Reason: entity.ReasonOK, Kind: entity.KindGranted}
}

// Status returns today's budget usage. It never mutates persisted state.
func (g *Governor) Status(ctx context.Context) entity.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	g.rollover(now)

	remaining := g.limits.DailyLimit - g.state.DailyRequests
	if remaining < 0 {
		remaining = 0
	}
	return entity.Status{
		Date:            g.state.Date,
		Used:            g.state.DailyRequests,
		Remaining:       remaining,
		Limit:           g.limits.DailyLimit,
		TokensAvailable: g.bucket.TokensAt(now),
		PowerSave:       remaining < g.limits.PowerSaveThreshold,
	}
}

// rollover resets the daily counters once the UTC date moves past the stored date.
// Caller must hold g.mu.
func (g *Governor) rollover(now time.Time) {
	today := now.Format(dateLayout)
	if g.state.Date >= today {
		return
	}
	g.logger.Info("new day: resetting governance budget", "previous", g.state.Date, "today", today)
	g.state.Date = today
	g.state.DailyRequests = 0
	g.state.Tickers = map[string]int{}
}

// snapshot copies the state so the repository never sees a map that is being mutated.
func (g *Governor) snapshot() entity.State {
	s := g.state
	s.Tickers = maps.Clone(g.state.Tickers)
	return s
}
