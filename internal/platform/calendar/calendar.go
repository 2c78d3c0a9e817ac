// Package calendar は期待される取引日を算出します。
package calendar

import (
	"fmt"
	"log/slog"
	"time"
)

// Mode はカレンダーの種類です。
type Mode string

const (
	ModeNYSE     Mode = "nyse"
	ModeBusiness Mode = "business"
)

// ParseMode は設定値をModeに変換します。空文字はNYSEです。
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNYSE:
		return ModeNYSE, nil
	case ModeBusiness:
		return ModeBusiness, nil
	}
	return "", fmt.Errorf("unknown calendar %q", s)
}

// Calendar は取引所カレンダーを優先し、使えない場合は平日カレンダーにフォールバックします。
type Calendar struct {
	mode   Mode
	nyse   *NYSE
	logger *slog.Logger
}

// New は指定モードのCalendarを生成します。
func New(mode Mode, logger *slog.Logger) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendar{mode: mode, nyse: NewNYSE(), logger: logger}
}

// TradingDays は期待される取引日と、それが取引所カレンダー由来かどうかを返します。
// reliableがfalseの場合は平日近似のため、休場日も欠損として数えられます。
func (c *Calendar) TradingDays(start, end time.Time) ([]time.Time, bool) {
	if c.mode == ModeNYSE {
		days, err := c.nyse.TradingDays(start, end)
		if err == nil {
			return days, true
		}
		c.logger.Warn("exchange calendar unavailable, falling back to business days", "error", err)
	}
	return BusinessDays(start, end), false
}
