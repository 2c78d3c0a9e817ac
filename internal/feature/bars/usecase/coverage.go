package usecase

import (
	"sort"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
)

const (
	// SufficientCoverage 以上なら取得を行いません。
	SufficientCoverage = 0.99
	// RebuildCoverage 未満なら期間全体を再取得します。
	RebuildCoverage = 0.6
	// MaxGapRuns はGap-Fillで取得する連続欠損区間の最大数です。
	MaxGapRuns = 2
)

// validateOHLC は不正なOHLCの行を除外し、除外件数を返します。
func validateOHLC(bars []entity.Bar) ([]entity.Bar, int) {
	valid := make([]entity.Bar, 0, len(bars))
	invalid := 0
	for _, b := range bars {
		if !b.Valid() {
			invalid++
			continue
		}
		valid = append(valid, b)
	}
	return valid, invalid
}

// computeCoverage は期待される取引日と保存済みの日付を比較します。
// today以降の日付は欠損に数えません。
func computeCoverage(bars []entity.Bar, expected []time.Time, reliable bool, today time.Time) entity.Coverage {
	present := make(map[time.Time]struct{}, len(bars))
	for _, b := range bars {
		present[b.Day()] = struct{}{}
	}

	var missing []time.Time
	for _, d := range expected {
		d = entity.NormalizeDay(d)
		if !d.Before(today) {
			continue
		}
		if _, ok := present[d]; !ok {
			missing = append(missing, d)
		}
	}

	cov := entity.Coverage{
		ExpectedCount: len(expected),
		MissingDates:  missing,
		Reliable:      reliable,
	}
	if len(expected) > 0 {
		cov.Ratio = 1 - float64(len(missing))/float64(len(expected))
	}
	return cov
}

// splitRuns は昇順の欠損日を、間隔が1暦日を超える箇所で連続区間に分割します。
func splitRuns(missing []time.Time) [][]time.Time {
	var runs [][]time.Time
	var cur []time.Time
	for _, d := range missing {
		if len(cur) > 0 && d.Sub(cur[len(cur)-1]) > 24*time.Hour {
			runs = append(runs, cur)
			cur = nil
		}
		cur = append(cur, d)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// planFetches は取得戦略と取得範囲を決めます。
// Gap-Fillは長い区間から最大MaxGapRuns件だけ選ぶため、それより短い古い欠損は
// 被覆率がRebuildCoverageを下回るまで埋まらないことがあります。
func planFetches(cov entity.Coverage, w entity.Window) (entity.Strategy, []entity.Window) {
	if cov.Ratio < RebuildCoverage {
		return entity.StrategyRebuild, []entity.Window{w}
	}

	runs := splitRuns(cov.MissingDates)
	sort.SliceStable(runs, func(i, j int) bool { return len(runs[i]) > len(runs[j]) })
	if len(runs) > MaxGapRuns {
		runs = runs[:MaxGapRuns]
	}

	spans := make([]entity.Window, 0, len(runs))
	for _, r := range runs {
		spans = append(spans, entity.Window{
			Start: r[0],
			End:   r[len(r)-1].Add(24 * time.Hour),
		})
	}
	return entity.StrategyGapFill, spans
}
