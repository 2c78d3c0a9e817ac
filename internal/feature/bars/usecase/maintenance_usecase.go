package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"stock_history/internal/feature/bars/domain/entity"

	"github.com/shopspring/decimal"
)

const (
	// glitchChange を超える終値の変化率を異常候補とします。
	glitchChange = 0.30
	// glitchVolumeRatio 未満の出来高比率(20日平均比)を異常候補とします。
	glitchVolumeRatio = 0.05
	// volumeWindow は出来高平均の期間です。
	volumeWindow = 20
)

// pennyClose 以下の最安終値を持つ銘柄は疑わしいデータとして扱います。
var pennyClose = decimal.RequireFromString("0.01")

// BarAdmin は照合経路の外で使う管理操作です。
type BarAdmin interface {
	Query(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error)
	DeleteSymbol(ctx context.Context, symbol string) (int64, error)
	Stats(ctx context.Context) ([]entity.SymbolHealth, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// MaintenanceUsecase はストアの点検と削除を行います。
type MaintenanceUsecase struct {
	bars BarAdmin
}

// NewMaintenanceUsecase は新しいMaintenanceUsecaseを作成します。
func NewMaintenanceUsecase(bars BarAdmin) *MaintenanceUsecase {
	return &MaintenanceUsecase{bars: bars}
}

// Purge は銘柄の全行を削除します。次回の照合では期間全体が再取得されます。
func (mu *MaintenanceUsecase) Purge(ctx context.Context, symbol string) (int64, error) {
	if symbol == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	return mu.bars.DeleteSymbol(ctx, symbol)
}

// Doctor は銘柄ごとの行数と最安終値を返し、最安終値が0.01以下の銘柄に印を付けます。
func (mu *MaintenanceUsecase) Doctor(ctx context.Context) ([]entity.SymbolHealth, error) {
	stats, err := mu.bars.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Suspect = stats[i].MinClose.LessThanOrEqual(pennyClose)
	}
	return stats, nil
}

// ScanGlitches は終値が前日比30%超動き、かつ出来高が20日平均の5%未満の行を返します。
// 20行に満たない区間は平均が定まらないため判定しません。symbolが空なら全銘柄が対象です。
func (mu *MaintenanceUsecase) ScanGlitches(ctx context.Context, symbol string, start, end time.Time) ([]entity.Glitch, error) {
	symbols := []string{symbol}
	if symbol == "" {
		var err error
		if symbols, err = mu.bars.ListSymbols(ctx); err != nil {
			return nil, err
		}
	}

	var out []entity.Glitch
	for _, s := range symbols {
		bars, err := mu.bars.Query(ctx, s, entity.ResolutionDaily, start, end)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", s, err)
		}
		out = append(out, findGlitches(bars)...)
	}
	return out, nil
}

func findGlitches(bars []entity.Bar) []entity.Glitch {
	var out []entity.Glitch
	var volSum float64
	vols := make([]float64, len(bars))
	for i, b := range bars {
		if b.Volume.Valid {
			vols[i] = b.Volume.Decimal.InexactFloat64()
		}
		volSum += vols[i]
		if i >= volumeWindow {
			volSum -= vols[i-volumeWindow]
		}
		if i == 0 || i < volumeWindow-1 {
			continue
		}

		prev := bars[i-1].Close
		if prev.IsZero() {
			continue
		}
		change := b.Close.Sub(prev).Div(prev).InexactFloat64()

		avg := volSum / volumeWindow
		if avg == 0 {
			avg = 1
		}
		ratio := vols[i] / avg
		if math.Abs(change) > glitchChange && ratio < glitchVolumeRatio {
			out = append(out, entity.Glitch{
				Symbol:      b.Symbol,
				Time:        b.Time,
				Close:       b.Close,
				Change:      change,
				VolumeRatio: ratio,
			})
		}
	}
	return out
}
