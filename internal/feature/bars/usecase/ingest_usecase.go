package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	govent "stock_history/internal/feature/governor/domain/entity"

	"github.com/shopspring/decimal"
)

// ErrInvalidCSV はCSVのヘッダーが不足している場合に返されます。
var ErrInvalidCSV = errors.New("invalid legacy csv")

// legacyColumns はレガシーCSVに必要な列です。
var legacyColumns = []string{"date", "open", "high", "low", "close", "volume"}

// Reconciler は1銘柄の照合を行います。
type Reconciler interface {
	Reconcile(ctx context.Context, symbol string, res entity.Resolution, period string) entity.Report
}

// BudgetReader は統制の予算状況を参照します。
type BudgetReader interface {
	Status(ctx context.Context) govent.Status
}

// BarWriter はバーの書き込みレイヤーです。
type BarWriter interface {
	Upsert(ctx context.Context, bars []entity.Bar, source, adjustment string) (int, error)
}

// IngestUsecase はウォッチリストの事前取得とレガシーデータの取り込みを行います。
type IngestUsecase struct {
	rec    Reconciler
	budget BudgetReader
	bars   BarWriter
	logger *slog.Logger
}

// NewIngestUsecase は新しいIngestUsecaseを作成します。
func NewIngestUsecase(rec Reconciler, budget BudgetReader, bars BarWriter, logger *slog.Logger) *IngestUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUsecase{rec: rec, budget: budget, bars: bars, logger: logger}
}

// Preload は全銘柄を順に照合します。残り予算が少なくなり省電力モードになった時点で打ち切ります。
func (iu *IngestUsecase) Preload(ctx context.Context, symbols []string, period string) ([]entity.Report, error) {
	reports := make([]entity.Report, 0, len(symbols))
	for i, s := range symbols {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		if st := iu.budget.Status(ctx); st.PowerSave {
			iu.logger.Warn("power save: stopping preload", "remaining", st.Remaining, "skipped", len(symbols)-i)
			break
		}
		r := iu.rec.Reconcile(ctx, s, entity.ResolutionDaily, period)
		iu.logger.Info("preloaded", "symbol", s, "coverage", r.CoverageRatio, "source", r.SourceLabel)
		reports = append(reports, r)
	}
	return reports, nil
}

// ImportLegacy はCSV(date,open,high,low,close,volume)をsource=legacy-bridgeとして取り込みます。
// dateはYYYY-MM-DDまたはUNIX秒です。解釈できない行はスキップします。
func (iu *IngestUsecase) ImportLegacy(ctx context.Context, symbol string, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("%w: read header: %v", ErrInvalidCSV, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range legacyColumns {
		if _, ok := idx[c]; !ok {
			return 0, fmt.Errorf("%w: missing column %q", ErrInvalidCSV, c)
		}
	}

	var bars []entity.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			iu.logger.Warn("skipping unreadable csv line", "line", line, "error", err)
			continue
		}
		b, err := parseLegacyRow(rec, idx)
		if err != nil {
			iu.logger.Warn("skipping csv line", "line", line, "error", err)
			continue
		}
		b.Symbol = symbol
		b.Resolution = entity.ResolutionDaily
		bars = append(bars, b)
	}

	n, err := iu.bars.Upsert(ctx, bars, entity.SourceLegacyBridge, entity.AdjustmentRaw)
	if err != nil {
		return 0, fmt.Errorf("failed to store legacy bars: %w", err)
	}
	return n, nil
}

func parseLegacyRow(rec []string, idx map[string]int) (entity.Bar, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	t, err := parseLegacyDate(field("date"))
	if err != nil {
		return entity.Bar{}, err
	}
	var b entity.Bar
	b.Time = t
	for _, p := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
	} {
		v, err := decimal.NewFromString(field(p.name))
		if err != nil {
			return entity.Bar{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = v
	}
	if v := field("volume"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return entity.Bar{}, fmt.Errorf("volume: %w", err)
		}
		b.Volume = decimal.NewNullDecimal(d)
	}
	return b, nil
}

func parseLegacyDate(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return entity.NormalizeDay(time.Unix(sec, 0)), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t, nil
}
