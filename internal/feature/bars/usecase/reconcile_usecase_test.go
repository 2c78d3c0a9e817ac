package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"
	govent "stock_history/internal/feature/governor/domain/entity"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBarRepository は自然キーで上書きするインメモリのBarRepositoryです。
type memoryBarRepository struct {
	mu       sync.Mutex
	rows     map[string]entity.Bar
	queryErr error
	failFrom int // このQuery回数目以降はqueryErrを返す。0なら常に
	queries  int
}

func newMemoryBarRepository() *memoryBarRepository {
	return &memoryBarRepository{rows: map[string]entity.Bar{}}
}

func key(b entity.Bar) string {
	return b.Symbol + "|" + string(b.Resolution) + "|" + b.Time.Format(time.RFC3339) + "|" + b.Source + "|" + b.Adjustment
}

func (m *memoryBarRepository) Query(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil && m.queries >= m.failFrom {
		return nil, m.queryErr
	}
	var out []entity.Bar
	for _, b := range m.rows {
		if b.Symbol == symbol && b.Resolution == res && !b.Time.Before(start) && !b.Time.After(end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memoryBarRepository) Upsert(ctx context.Context, bars []entity.Bar, source, adjustment string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		b.Source = source
		b.Adjustment = adjustment
		m.rows[key(b)] = b
	}
	return len(bars), nil
}

func (m *memoryBarRepository) seed(bars ...entity.Bar) {
	for _, b := range bars {
		if b.Source == "" {
			b.Source = "finazon"
		}
		if b.Adjustment == "" {
			b.Adjustment = entity.AdjustmentRaw
		}
		m.rows[key(b)] = b
	}
}

// fakeMarket はMarketRepositoryのモック実装です。
type fakeMarket struct {
	credential bool
	fetchFn    func(call int, start, end time.Time) ([]entity.Bar, error)
	calls      []entity.Window
}

func (f *fakeMarket) Name() string        { return "finazon" }
func (f *fakeMarket) HasCredential() bool { return f.credential }

func (f *fakeMarket) FetchRange(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error) {
	f.calls = append(f.calls, entity.Window{Start: start, End: end})
	if f.fetchFn == nil {
		return nil, usecase.ErrNoData
	}
	return f.fetchFn(len(f.calls)-1, start, end)
}

// fakeGate は事前に決めた判定を順に返します。尽きたら許可します。
type fakeGate struct {
	decisions []govent.Decision
	calls     int
}

func (g *fakeGate) Allow(ctx context.Context, key string) govent.Decision {
	g.calls++
	if len(g.decisions) > 0 {
		d := g.decisions[0]
		g.decisions = g.decisions[1:]
		return d
	}
	return govent.Decision{Granted: true, Reason: govent.ReasonOK, Kind: govent.KindGranted}
}

// fakeCalendar は期間に関係なく固定の取引日を返します。
type fakeCalendar struct {
	days     []time.Time
	reliable bool
}

func (c fakeCalendar) TradingDays(start, end time.Time) ([]time.Time, bool) {
	return c.days, c.reliable
}

var (
	// 2025-03-31(月) 12:00 UTC
	now       = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	granted   = govent.Decision{Granted: true, Reason: govent.ReasonOK, Kind: govent.KindGranted}
	rateLimit = govent.Decision{Reason: govent.ReasonRateLimited, Kind: govent.KindRateLimited}
	dailyStop = govent.Decision{Reason: govent.ReasonDailyBudget, Kind: govent.KindDailyBudget}
)

// weekdaysBefore は昨日から遡ってn日分の平日を昇順で返します。
func weekdaysBefore(n int) []time.Time {
	var out []time.Time
	for d := entity.NormalizeDay(now).AddDate(0, 0, -1); len(out) < n; d = d.AddDate(0, 0, -1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append([]time.Time{d}, out...)
	}
	return out
}

// consecutiveDays は昨日から遡ってn日分の暦日を昇順で返します。
func consecutiveDays(n int) []time.Time {
	out := make([]time.Time, n)
	start := entity.NormalizeDay(now).AddDate(0, 0, -n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func bar(symbol string, t time.Time, open, high, low, close string) entity.Bar {
	return entity.Bar{
		Symbol:     symbol,
		Resolution: entity.ResolutionDaily,
		Time:       t,
		Open:       decimal.RequireFromString(open),
		High:       decimal.RequireFromString(high),
		Low:        decimal.RequireFromString(low),
		Close:      decimal.RequireFromString(close),
		Volume:     decimal.NewNullDecimal(decimal.NewFromInt(1000)),
	}
}

func okBar(symbol string, t time.Time) entity.Bar {
	return bar(symbol, t, "100", "110", "90", "105")
}

func newUsecase(repo *memoryBarRepository, market *fakeMarket, gate *fakeGate, cal fakeCalendar) *usecase.ReconcileUsecase {
	return usecase.NewReconcileUsecase(repo, market, gate, cal, usecase.WithNow(func() time.Time { return now }))
}

func TestReconcile_FillsTwoDayGap(t *testing.T) {
	t.Parallel()

	expected := weekdaysBefore(21)
	gap := map[time.Time]bool{expected[8]: true, expected[9]: true}

	repo := newMemoryBarRepository()
	for _, d := range expected {
		if !gap[d] {
			repo.seed(okBar("AAPL", d))
		}
	}
	market := &fakeMarket{credential: true, fetchFn: func(call int, start, end time.Time) ([]entity.Bar, error) {
		return []entity.Bar{okBar("", expected[8]), okBar("", expected[9])}, nil
	}}
	gate := &fakeGate{}

	r := newUsecase(repo, market, gate, fakeCalendar{days: expected, reliable: true}).
		Reconcile(context.Background(), "AAPL", entity.ResolutionDaily, "1mo")

	assert.Equal(t, entity.StrategyGapFill, r.Strategy)
	require.Len(t, market.calls, 1)
	assert.Equal(t, expected[8], market.calls[0].Start)
	assert.Equal(t, expected[9].Add(24*time.Hour), market.calls[0].End)

	assert.InDelta(t, 1.0, r.CoverageRatio, 1e-9)
	assert.Equal(t, 0, r.MissingCount)
	assert.Equal(t, 21, r.ExpectedCount)
	assert.Len(t, r.Bars, 21)
	assert.Equal(t, "DB + Filled (2 rows)", r.SourceLabel)
	assert.True(t, r.Reliable)
	require.Len(t, r.Fetches, 1)
	assert.Equal(t, 2, r.Fetches[0].Rows)
	assert.Equal(t, 2, repo.queries, "store is re-read exactly once after writing")
}

func TestReconcile_SufficientCoverageSkipsFetch(t *testing.T) {
	t.Parallel()

	expected := weekdaysBefore(21)
	repo := newMemoryBarRepository()
	for _, d := range expected {
		repo.seed(okBar("MSFT", d))
	}
	market := &fakeMarket{credential: true}
	gate := &fakeGate{}

	r := newUsecase(repo, market, gate, fakeCalendar{days: expected, reliable: true}).
		Reconcile(context.Background(), "MSFT", entity.ResolutionDaily, "")

	assert.Equal(t, entity.StrategyNone, r.Strategy)
	assert.Equal(t, usecase.LabelCached, r.SourceLabel)
	assert.Equal(t, usecase.DefaultPeriod, r.Period)
	assert.Equal(t, 0, gate.calls)
	assert.Empty(t, market.calls)
	assert.InDelta(t, 1.0, r.CoverageRatio, 1e-9)
}

func TestReconcile_ClassificationBoundary(t *testing.T) {
	t.Parallel()

	expected := consecutiveDays(100)

	tests := []struct {
		name         string
		present      func(i int) bool
		wantStrategy entity.Strategy
		wantSpans    []entity.Window
	}{
		{
			name:         "55 of 100 triggers one rebuild",
			present:      func(i int) bool { return i < 55 },
			wantStrategy: entity.StrategyRebuild,
		},
		{
			name: "85 of 100 triggers at most two gap fills",
			// 欠損: [10..16](7日), [40..44](5日), [70..72](3日)
			present: func(i int) bool {
				return !(i >= 10 && i <= 16) && !(i >= 40 && i <= 44) && !(i >= 70 && i <= 72)
			},
			wantStrategy: entity.StrategyGapFill,
			wantSpans: []entity.Window{
				{Start: expected[10], End: expected[16].Add(24 * time.Hour)},
				{Start: expected[40], End: expected[44].Add(24 * time.Hour)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newMemoryBarRepository()
			for i, d := range expected {
				if tt.present(i) {
					repo.seed(okBar("NVDA", d))
				}
			}
			market := &fakeMarket{credential: true}
			gate := &fakeGate{}

			r := newUsecase(repo, market, gate, fakeCalendar{days: expected, reliable: true}).
				Reconcile(context.Background(), "NVDA", entity.ResolutionDaily, "6mo")

			assert.Equal(t, tt.wantStrategy, r.Strategy)
			if tt.wantStrategy == entity.StrategyRebuild {
				require.Len(t, market.calls, 1)
				assert.Equal(t, r.Window, market.calls[0], "rebuild spans the full window")
				return
			}
			assert.LessOrEqual(t, len(market.calls), usecase.MaxGapRuns)
			assert.Equal(t, tt.wantSpans, market.calls)
		})
	}
}

func TestReconcile_GovernorRejections(t *testing.T) {
	t.Parallel()

	expected := consecutiveDays(40)
	// 2つの欠損区間: [5..7], [20..21]
	missing := map[int]bool{5: true, 6: true, 7: true, 20: true, 21: true}

	tests := []struct {
		name          string
		decisions     []govent.Decision
		fetchErr      error
		wantGateCalls int
		wantFetches   int
	}{
		{
			name:          "daily ceiling stops remaining runs",
			decisions:     []govent.Decision{dailyStop},
			wantGateCalls: 1,
			wantFetches:   0,
		},
		{
			name:          "per-key ceiling stops remaining runs",
			decisions:     []govent.Decision{{Reason: "Ticker Limit (AMD) Exceeded", Kind: govent.KindKeyBudget}},
			wantGateCalls: 1,
			wantFetches:   0,
		},
		{
			name:          "rate limit moves on to next run",
			decisions:     []govent.Decision{rateLimit, granted},
			wantGateCalls: 2,
			wantFetches:   1,
		},
		{
			name:          "upstream 429 moves on to next run",
			fetchErr:      usecase.ErrUpstreamRateLimited,
			wantGateCalls: 2,
			wantFetches:   2,
		},
		{
			name:          "upstream failure is zero rows",
			fetchErr:      errors.Join(usecase.ErrUpstreamStatus, errors.New("status 500")),
			wantGateCalls: 2,
			wantFetches:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newMemoryBarRepository()
			for i, d := range expected {
				if !missing[i] {
					repo.seed(okBar("AMD", d))
				}
			}
			market := &fakeMarket{credential: true, fetchFn: func(call int, start, end time.Time) ([]entity.Bar, error) {
				if tt.fetchErr != nil {
					return nil, tt.fetchErr
				}
				return nil, usecase.ErrNoData
			}}
			gate := &fakeGate{decisions: append([]govent.Decision(nil), tt.decisions...)}

			r := newUsecase(repo, market, gate, fakeCalendar{days: expected, reliable: true}).
				Reconcile(context.Background(), "AMD", entity.ResolutionDaily, "3mo")

			assert.Equal(t, tt.wantGateCalls, gate.calls)
			assert.Len(t, market.calls, tt.wantFetches)
			assert.Equal(t, usecase.LabelCached, r.SourceLabel)
			assert.Equal(t, 5, r.MissingCount, "nothing was written")
			assert.Len(t, r.Fetches, tt.wantGateCalls)
		})
	}
}

func TestReconcile_InvalidOHLCIsCountedAndDropped(t *testing.T) {
	t.Parallel()

	expected := weekdaysBefore(5)
	repo := newMemoryBarRepository()
	for _, d := range expected[:4] {
		repo.seed(okBar("TSLA", d))
	}
	repo.seed(bar("TSLA", expected[4], "9", "8", "10", "9.5"))

	r := newUsecase(repo, &fakeMarket{}, &fakeGate{}, fakeCalendar{days: expected, reliable: true}).
		Reconcile(context.Background(), "TSLA", entity.ResolutionDaily, "1mo")

	assert.Equal(t, 1, r.InvalidOHLCCount)
	assert.Len(t, r.Bars, 4)
	for _, b := range r.Bars {
		assert.NotEqual(t, expected[4], b.Time, "invalid bar must not be served")
	}
	assert.Equal(t, 1, r.MissingCount)
}

func TestReconcile_EmptyStoreWithoutCredential(t *testing.T) {
	t.Parallel()

	expected := weekdaysBefore(21)
	market := &fakeMarket{credential: false}
	gate := &fakeGate{}

	r := newUsecase(newMemoryBarRepository(), market, gate, fakeCalendar{days: expected, reliable: false}).
		Reconcile(context.Background(), "IBM", entity.ResolutionDaily, "1mo")

	assert.NotNil(t, r.Bars)
	assert.Empty(t, r.Bars)
	assert.InDelta(t, 0.0, r.CoverageRatio, 1e-9)
	assert.Equal(t, 21, r.MissingCount)
	assert.False(t, r.Reliable)
	assert.Equal(t, entity.StrategyNone, r.Strategy)
	assert.Equal(t, 0, gate.calls)
	assert.Empty(t, market.calls)
}

func TestReconcile_StoreUnavailable(t *testing.T) {
	t.Parallel()

	repo := newMemoryBarRepository()
	repo.queryErr = errors.New("database is locked")
	market := &fakeMarket{credential: true}
	gate := &fakeGate{}

	r := newUsecase(repo, market, gate, fakeCalendar{days: weekdaysBefore(21), reliable: true}).
		Reconcile(context.Background(), "IBM", entity.ResolutionDaily, "1mo")

	assert.Equal(t, usecase.LabelUnavailable, r.SourceLabel)
	assert.Empty(t, r.Bars)
	assert.Equal(t, 0, gate.calls)
}

func TestReconcile_EmptyCalendar(t *testing.T) {
	t.Parallel()

	r := newUsecase(newMemoryBarRepository(), &fakeMarket{}, &fakeGate{}, fakeCalendar{reliable: true}).
		Reconcile(context.Background(), "IBM", entity.ResolutionDaily, "1mo")

	assert.Equal(t, 0, r.ExpectedCount)
	assert.InDelta(t, 0.0, r.CoverageRatio, 1e-9)
}

func TestReconcile_UpsertTagsSourceAndAdjustment(t *testing.T) {
	t.Parallel()

	expected := weekdaysBefore(10)
	repo := newMemoryBarRepository()
	market := &fakeMarket{credential: true, fetchFn: func(call int, start, end time.Time) ([]entity.Bar, error) {
		out := make([]entity.Bar, 0, len(expected))
		for _, d := range expected {
			out = append(out, okBar("", d))
		}
		return out, nil
	}}

	r := newUsecase(repo, market, &fakeGate{}, fakeCalendar{days: expected, reliable: true}).
		Reconcile(context.Background(), "ORCL", entity.ResolutionDaily, "1mo")

	assert.Equal(t, entity.StrategyRebuild, r.Strategy)
	require.Len(t, r.Bars, 10)
	for _, b := range r.Bars {
		assert.Equal(t, "ORCL", b.Symbol)
		assert.Equal(t, "finazon", b.Source)
		assert.Equal(t, entity.AdjustmentRaw, b.Adjustment)
	}
	assert.Equal(t, "DB + Filled (10 rows)", r.SourceLabel)
}

func TestReconcile_RereadFailureKeepsPreFillNumbers(t *testing.T) {
	t.Parallel()

	expected := weekdaysBefore(10)
	repo := newMemoryBarRepository()
	repo.queryErr = errors.New("connection reset")
	repo.failFrom = 2
	market := &fakeMarket{credential: true, fetchFn: func(call int, start, end time.Time) ([]entity.Bar, error) {
		out := make([]entity.Bar, 0, len(expected))
		for _, d := range expected {
			out = append(out, okBar("", d))
		}
		return out, nil
	}}

	r := newUsecase(repo, market, &fakeGate{}, fakeCalendar{days: expected, reliable: true}).
		Reconcile(context.Background(), "ORCL", entity.ResolutionDaily, "1mo")

	assert.Equal(t, 2, repo.queries)
	assert.Equal(t, "DB + Filled (10 rows, pre-fill coverage)", r.SourceLabel)
	assert.NotEqual(t, "DB + Filled (10 rows)", r.SourceLabel)
	assert.InDelta(t, 0.0, r.CoverageRatio, 1e-9)
	assert.Equal(t, 10, r.MissingCount)
	assert.Empty(t, r.Bars)
	require.Len(t, r.Fetches, 1)
	assert.Equal(t, 10, r.Fetches[0].Rows)
}
