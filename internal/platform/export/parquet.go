// Package export writes stored bars to columnar files for offline analysis.
package export

import (
	"io"

	"github.com/parquet-go/parquet-go"

	"stock_history/internal/feature/bars/domain/entity"
)

// Row is the parquet schema of one exported bar. Prices are widened to float64.
type Row struct {
	Symbol     string   `parquet:"symbol"`
	Date       string   `parquet:"date"`
	Timestamp  int64    `parquet:"t"` // Unix seconds
	Open       float64  `parquet:"o"`
	High       float64  `parquet:"h"`
	Low        float64  `parquet:"l"`
	Close      float64  `parquet:"c"`
	Volume     *float64 `parquet:"v,optional"`
	Source     string   `parquet:"source"`
	Adjustment string   `parquet:"adjustment"`
}

// Rows converts bars to parquet rows, keeping their order.
func Rows(bars []entity.Bar) []Row {
	out := make([]Row, 0, len(bars))
	for _, b := range bars {
		r := Row{
			Symbol:     b.Symbol,
			Date:       b.Day().Format("2006-01-02"),
			Timestamp:  b.Time.Unix(),
			Open:       b.Open.InexactFloat64(),
			High:       b.High.InexactFloat64(),
			Low:        b.Low.InexactFloat64(),
			Close:      b.Close.InexactFloat64(),
			Source:     b.Source,
			Adjustment: b.Adjustment,
		}
		if b.Volume.Valid {
			v := b.Volume.Decimal.InexactFloat64()
			r.Volume = &v
		}
		out = append(out, r)
	}
	return out
}

// WriteParquet writes bars to w.
func WriteParquet(w io.Writer, bars []entity.Bar) error {
	return parquet.Write(w, Rows(bars))
}

// WriteParquetFile writes bars to path, replacing any existing file.
func WriteParquetFile(path string, bars []entity.Bar) error {
	return parquet.WriteFile(path, Rows(bars))
}
