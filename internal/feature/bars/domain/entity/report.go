package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy is the fetch strategy chosen by a reconciliation.
type Strategy string

const (
	StrategyNone    Strategy = "none"
	StrategyRebuild Strategy = "rebuild"
	StrategyGapFill Strategy = "gap_fill"
)

// Window is an inclusive [Start, End] time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Coverage compares stored bars with the expected trading calendar of a window.
type Coverage struct {
	ExpectedCount int
	MissingDates  []time.Time // ascending
	Ratio         float64
	Reliable      bool // false when the expected calendar is a business-day approximation
}

// FetchAttempt records one governed upstream call made during a reconciliation.
type FetchAttempt struct {
	Start   time.Time
	End     time.Time
	Granted bool
	Reason  string // governor reason, or the upstream outcome when granted
	Rows    int    // rows written to the store
}

// Report is the result of reconciling one symbol over one window.
type Report struct {
	Symbol           string
	Resolution       Resolution
	Period           string
	Window           Window
	Bars             []Bar
	CoverageRatio    float64
	MissingCount     int
	MissingDates     []time.Time
	ExpectedCount    int
	InvalidOHLCCount int
	SourceLabel      string
	Reliable         bool
	Strategy         Strategy
	Fetches          []FetchAttempt
}

// SymbolHealth summarizes stored rows of one symbol.
type SymbolHealth struct {
	Symbol   string
	Rows     int64
	MinClose decimal.Decimal
	Suspect  bool // min close at or below the penny threshold
}

// Glitch is a stored bar flagged as a probable bad print: a large close-to-close move on very thin volume.
type Glitch struct {
	Symbol      string
	Time        time.Time
	Close       decimal.Decimal
	Change      float64 // close-to-close change ratio
	VolumeRatio float64 // volume / trailing average volume
}
