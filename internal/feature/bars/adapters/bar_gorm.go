package adapters

import (
	"context"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize は1文あたりの最大行数です。
const upsertBatchSize = 500

type barGorm struct {
	db *gorm.DB
}

var (
	_ usecase.BarRepository = (*barGorm)(nil)
	_ usecase.BarAdmin      = (*barGorm)(nil)
)

func NewBarRepository(db *gorm.DB) *barGorm {
	return &barGorm{db: db}
}

// BarModel は自然キー(symbol, resolution, ts, source, adjustment)を複合主キーに持つ日足の行です。
type BarModel struct {
	Symbol     string `gorm:"primaryKey;size:32;index:idx_bar_lookup,priority:1"`
	Resolution string `gorm:"primaryKey;size:8;index:idx_bar_lookup,priority:2"`
	Ts         int64  `gorm:"primaryKey;column:ts;autoIncrement:false;index:idx_bar_lookup,priority:3"`
	Source     string `gorm:"primaryKey;size:32"`
	Adjustment string `gorm:"primaryKey;size:16"`

	Open      decimal.Decimal     `gorm:"type:numeric;not null"`
	High      decimal.Decimal     `gorm:"type:numeric;not null"`
	Low       decimal.Decimal     `gorm:"type:numeric;not null"`
	Close     decimal.Decimal     `gorm:"type:numeric;not null"`
	Volume    decimal.NullDecimal `gorm:"type:numeric"`
	UpdatedAt time.Time
}

func (BarModel) TableName() string {
	return "ohlcv_v2"
}

func toModel(e entity.Bar, source, adjustment string) BarModel {
	return BarModel{
		Symbol:     e.Symbol,
		Resolution: string(e.Resolution),
		Ts:         e.Time.Unix(),
		Source:     source,
		Adjustment: adjustment,
		Open:       e.Open,
		High:       e.High,
		Low:        e.Low,
		Close:      e.Close,
		Volume:     e.Volume,
	}
}

func toEntity(m BarModel) entity.Bar {
	return entity.Bar{
		Symbol:     m.Symbol,
		Resolution: entity.Resolution(m.Resolution),
		Time:       time.Unix(m.Ts, 0).UTC(),
		Open:       m.Open,
		High:       m.High,
		Low:        m.Low,
		Close:      m.Close,
		Volume:     m.Volume,
		Source:     m.Source,
		Adjustment: m.Adjustment,
	}
}

// Upsert は自然キーが衝突した行の値を置き換えます。同じキーが複数あれば後の行が勝ちます。
func (r *barGorm) Upsert(ctx context.Context, bars []entity.Bar, source, adjustment string) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	// 1文の中で同じキーが重複するとON CONFLICTが失敗するため事前に畳み込む
	type naturalKey struct {
		symbol, resolution string
		ts                 int64
	}
	pos := make(map[naturalKey]int, len(bars))
	ms := make([]BarModel, 0, len(bars))
	for _, e := range bars {
		m := toModel(e, source, adjustment)
		k := naturalKey{m.Symbol, m.Resolution, m.Ts}
		if i, ok := pos[k]; ok {
			ms[i] = m
			continue
		}
		pos[k] = len(ms)
		ms = append(ms, m)
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"}, {Name: "resolution"}, {Name: "ts"}, {Name: "source"}, {Name: "adjustment"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).CreateInBatches(&ms, upsertBatchSize).Error
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

func (r *barGorm) Query(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error) {
	var rows []BarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND resolution = ? AND ts BETWEEN ? AND ?", symbol, string(res), start.Unix(), end.Unix()).
		Order("ts ASC").Order("source ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]entity.Bar, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}

// DeleteSymbol は銘柄の全行を削除し、削除件数を返します。
func (r *barGorm) DeleteSymbol(ctx context.Context, symbol string) (int64, error) {
	tx := r.db.WithContext(ctx).Where("symbol = ?", symbol).Delete(&BarModel{})
	return tx.RowsAffected, tx.Error
}

// Stats は銘柄ごとの行数と最安終値を返します。
func (r *barGorm) Stats(ctx context.Context) ([]entity.SymbolHealth, error) {
	var rows []struct {
		Symbol   string
		RowCount int64
		MinClose decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&BarModel{}).
		Select("symbol, COUNT(*) AS row_count, MIN(close) AS min_close").
		Group("symbol").
		Order("symbol").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]entity.SymbolHealth, 0, len(rows))
	for _, s := range rows {
		out = append(out, entity.SymbolHealth{Symbol: s.Symbol, Rows: s.RowCount, MinClose: s.MinClose})
	}
	return out, nil
}

// ListSymbols は保存済みの銘柄を昇順で返します。
func (r *barGorm) ListSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).Model(&BarModel{}).
		Distinct("symbol").
		Order("symbol").
		Pluck("symbol", &symbols).Error
	return symbols, err
}
