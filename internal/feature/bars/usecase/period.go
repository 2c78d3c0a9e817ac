package usecase

import (
	"time"

	"stock_history/internal/feature/bars/domain/entity"
)

// DefaultPeriod は期間指定が無い場合の期間トークンです。
const DefaultPeriod = "1mo"

// periodDays は期間トークンから遡る日数への固定の対応表です。
// 祝日を含む月でも取引日が足りるよう、暦日に数日の余裕を持たせています。
var periodDays = map[string]int{
	"1mo": 35,
	"3mo": 95,
	"6mo": 185,
	"1y":  370,
}

// PeriodDays は期間トークンの日数を返します。未知のトークンは1ヶ月扱いです。
func PeriodDays(period string) int {
	if d, ok := periodDays[period]; ok {
		return d
	}
	return periodDays[DefaultPeriod]
}

// WindowFor はnow(UTC)を基準に期間トークンを絶対時間範囲に変換します。
// 開始は(今日 - 日数)の0時、終了は今日の23:59:59です。
func WindowFor(period string, now time.Time) entity.Window {
	today := entity.NormalizeDay(now)
	return entity.Window{
		Start: today.AddDate(0, 0, -PeriodDays(period)),
		End:   today.Add(24*time.Hour - time.Second),
	}
}
