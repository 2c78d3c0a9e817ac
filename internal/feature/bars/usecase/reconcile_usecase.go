// Package usecase は日足の照合・補完パイプラインを実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	govent "stock_history/internal/feature/governor/domain/entity"

	"github.com/google/uuid"
)

// レポートのデータ出所ラベルです。
const (
	LabelCached      = "DB (Cached)"
	LabelUnavailable = "DB Unavailable"
	// LabelFilledStale は補完後の再読込に失敗し、補完前の集計を返したことを示します。
	LabelFilledStale = "DB + Filled (%d rows, pre-fill coverage)"
)

// BarRepository は日足データの永続化レイヤーを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type BarRepository interface {
	// Query は[start, end]の範囲のバーをタイムスタンプ昇順で返します。
	Query(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error)
	// Upsert は自然キーで置き換えながらバーを保存し、書き込んだ件数を返します。
	Upsert(ctx context.Context, bars []entity.Bar, source, adjustment string) (int, error)
}

// MarketRepository は上流の株価データプロバイダーを抽象化します。
type MarketRepository interface {
	// Name はソースタグとして保存されるプロバイダー名です。
	Name() string
	// HasCredential はAPIキーが設定されているかを返します。
	HasCredential() bool
	// FetchRange は[start, end]の日足を取得します。失敗はerrors.Isで分類できるエラーを返します。
	FetchRange(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error)
}

// Gate は上流呼び出しの許可を判定します。
type Gate interface {
	Allow(ctx context.Context, key string) govent.Decision
}

// Calendar は期待される取引日を返します。reliableがfalseなら平日近似です。
type Calendar interface {
	TradingDays(start, end time.Time) ([]time.Time, bool)
}

// ReconcileOption はReconcileUsecaseの設定です。
type ReconcileOption func(*ReconcileUsecase)

// WithNow は現在時刻の取得関数を差し替えます。
func WithNow(now func() time.Time) ReconcileOption {
	return func(u *ReconcileUsecase) { u.now = now }
}

// WithLogger はロガーを差し替えます。
func WithLogger(l *slog.Logger) ReconcileOption {
	return func(u *ReconcileUsecase) { u.logger = l }
}

// ReconcileUsecase は保存済みの日足を取引カレンダーと照合し、欠損を統制下で補完します。
type ReconcileUsecase struct {
	bars     BarRepository
	market   MarketRepository
	gate     Gate
	calendar Calendar
	now      func() time.Time
	logger   *slog.Logger
}

// NewReconcileUsecase は新しいReconcileUsecaseを生成します。
func NewReconcileUsecase(bars BarRepository, market MarketRepository, gate Gate, cal Calendar, opts ...ReconcileOption) *ReconcileUsecase {
	u := &ReconcileUsecase{
		bars:     bars,
		market:   market,
		gate:     gate,
		calendar: cal,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Reconcile は銘柄の期間内の日足と被覆率レポートを返します。
// 上流の失敗や統制による拒否はエラーにならず、レポートの各フィールドで表現されます。
func (u *ReconcileUsecase) Reconcile(ctx context.Context, symbol string, res entity.Resolution, period string) entity.Report {
	if period == "" {
		period = DefaultPeriod
	}
	log := u.logger.With("run_id", uuid.NewString(), "symbol", symbol, "resolution", string(res), "period", period)

	now := u.now().UTC()
	today := entity.NormalizeDay(now)
	w := WindowFor(period, now)

	report := entity.Report{
		Symbol:     symbol,
		Resolution: res,
		Period:     period,
		Window:     w,
		Strategy:   entity.StrategyNone,
		Bars:       []entity.Bar{},
	}

	expected, reliable := u.calendar.TradingDays(w.Start, w.End)
	if !reliable {
		log.Warn("coverage computed against business-day approximation")
	}

	valid, invalid, cov, err := u.read(ctx, symbol, res, w, expected, reliable, today)
	if err != nil {
		log.Error("failed to read stored bars", "error", err)
		report.SourceLabel = LabelUnavailable
		report.Reliable = reliable
		report.ExpectedCount = len(expected)
		return report
	}
	if invalid > 0 {
		log.Warn("dropped bars violating OHLC invariant", "count", invalid)
	}

	if cov.Ratio >= SufficientCoverage {
		return fill(report, valid, invalid, cov, LabelCached)
	}
	if !u.market.HasCredential() {
		log.Warn("coverage insufficient but no provider credential configured", "coverage", cov.Ratio)
		return fill(report, valid, invalid, cov, LabelCached)
	}

	strategy, spans := planFetches(cov, w)
	report.Strategy = strategy
	log.Info("filling gaps", "strategy", strategy, "coverage", cov.Ratio, "missing", len(cov.MissingDates), "fetches", len(spans))

	written := 0
	for _, span := range spans {
		attempt, stop := u.fetch(ctx, log, symbol, res, span)
		report.Fetches = append(report.Fetches, attempt)
		written += attempt.Rows
		if stop {
			break
		}
	}

	if written == 0 {
		return fill(report, valid, invalid, cov, LabelCached)
	}

	// 書き込みがあった場合のみ一度だけ再計算する
	valid2, invalid2, cov2, err := u.read(ctx, symbol, res, w, expected, reliable, today)
	if err != nil {
		// 書き込みは成功しているが、被覆率などは補完前の値のまま
		log.Error("failed to re-read bars after fill, reporting pre-fill coverage", "rows", written, "error", err)
		return fill(report, valid, invalid, cov, fmt.Sprintf(LabelFilledStale, written))
	}
	log.Info("gaps filled", "rows", written, "coverage", cov2.Ratio, "missing", len(cov2.MissingDates))
	return fill(report, valid2, invalid2, cov2, fmt.Sprintf("DB + Filled (%d rows)", written))
}

// read は保存済みバーを読み込み、検証と被覆率計算を行います。
func (u *ReconcileUsecase) read(ctx context.Context, symbol string, res entity.Resolution, w entity.Window,
	expected []time.Time, reliable bool, today time.Time) ([]entity.Bar, int, entity.Coverage, error) {
	bars, err := u.bars.Query(ctx, symbol, res, w.Start, w.End)
	if err != nil {
		return nil, 0, entity.Coverage{}, err
	}
	valid, invalid := validateOHLC(bars)
	return valid, invalid, computeCoverage(valid, expected, reliable, today), nil
}

// fetch は統制の許可を得て1区間を取得・保存します。
// stopがtrueなら、この照合ではこれ以上の取得を行いません。
func (u *ReconcileUsecase) fetch(ctx context.Context, log *slog.Logger, symbol string, res entity.Resolution, span entity.Window) (entity.FetchAttempt, bool) {
	attempt := entity.FetchAttempt{Start: span.Start, End: span.End}

	d := u.gate.Allow(ctx, symbol)
	attempt.Reason = d.Reason
	if !d.Granted {
		log.Warn("fetch blocked by governor", "reason", d.Reason, "start", span.Start, "end", span.End)
		return attempt, d.Exhausted()
	}
	attempt.Granted = true

	rows, err := u.market.FetchRange(ctx, symbol, res, span.Start, span.End)
	switch {
	case errors.Is(err, ErrNoData):
		log.Info("upstream returned no rows", "start", span.Start, "end", span.End)
		attempt.Reason = "no data"
		return attempt, false
	case errors.Is(err, ErrUpstreamRateLimited):
		log.Warn("upstream rate limited", "start", span.Start, "end", span.End)
		attempt.Reason = "upstream rate limited"
		return attempt, false
	case errors.Is(err, ErrMalformedResponse):
		log.Error("malformed upstream response", "error", err)
		attempt.Reason = "malformed response"
		return attempt, false
	case err != nil:
		log.Warn("upstream fetch failed", "error", err)
		attempt.Reason = "upstream error"
		return attempt, false
	}

	for i := range rows {
		rows[i].Symbol = symbol
		rows[i].Resolution = res
	}
	n, err := u.bars.Upsert(ctx, rows, u.market.Name(), entity.AdjustmentRaw)
	if err != nil {
		log.Error("failed to persist fetched bars", "rows", len(rows), "error", err)
		attempt.Reason = "persist failed"
		return attempt, false
	}
	attempt.Rows = n
	return attempt, false
}

func fill(r entity.Report, bars []entity.Bar, invalid int, cov entity.Coverage, label string) entity.Report {
	if bars == nil {
		bars = []entity.Bar{}
	}
	r.Bars = bars
	r.CoverageRatio = cov.Ratio
	r.MissingDates = cov.MissingDates
	r.MissingCount = len(cov.MissingDates)
	r.ExpectedCount = cov.ExpectedCount
	r.InvalidOHLCCount = invalid
	r.Reliable = cov.Reliable
	r.SourceLabel = label
	return r
}
