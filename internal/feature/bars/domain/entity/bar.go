// Package entity defines the domain models for the bars feature.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is the sampling interval of a bar series.
type Resolution string

// ResolutionDaily is the only resolution currently stored and reconciled.
const ResolutionDaily Resolution = "1d"

const (
	// AdjustmentRaw tags prices exactly as delivered by the source (no split/dividend adjustment).
	AdjustmentRaw = "raw"
	// SourceLegacyBridge tags bars imported from the legacy single-source table.
	SourceLegacyBridge = "legacy-bridge"
)

// ParseResolution validates a resolution token. An empty token means daily.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(strings.TrimSpace(s)) {
	case "", ResolutionDaily:
		return ResolutionDaily, nil
	default:
		return "", fmt.Errorf("unsupported resolution %q", s)
	}
}

// Bar represents one OHLCV observation for a symbol at a timestamp.
// For daily resolution Time is normalized to UTC midnight.
type Bar struct {
	Symbol     string              // Ticker symbol (e.g., "AAPL")
	Resolution Resolution          // Sampling interval
	Time       time.Time           // Start of the bar period (UTC)
	Open       decimal.Decimal     // Opening price
	High       decimal.Decimal     // Highest price
	Low        decimal.Decimal     // Lowest price
	Close      decimal.Decimal     // Closing price
	Volume     decimal.NullDecimal // Traded volume, may be absent
	Source     string              // Provenance (upstream feed name or legacy-bridge)
	Adjustment string              // Price adjustment kind (e.g., "raw")
}

// Valid reports whether the bar satisfies low <= min(open, close) and high >= max(open, close)
// with no negative price.
func (b Bar) Valid() bool {
	for _, p := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close} {
		if p.IsNegative() {
			return false
		}
	}
	if b.Volume.Valid && b.Volume.Decimal.IsNegative() {
		return false
	}
	minOC := decimal.Min(b.Open, b.Close)
	maxOC := decimal.Max(b.Open, b.Close)
	return b.Low.LessThanOrEqual(minOC) && b.High.GreaterThanOrEqual(maxOC)
}

// Day returns the UTC calendar date of the bar.
func (b Bar) Day() time.Time {
	return NormalizeDay(b.Time)
}

// NormalizeDay truncates t to midnight UTC of its UTC calendar date.
func NormalizeDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
