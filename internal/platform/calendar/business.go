package calendar

import "time"

// BusinessDays は[start, end]の月〜金をUTC 0時で昇順に返します。休場日は考慮しません。
func BusinessDays(start, end time.Time) []time.Time {
	from, to := day(start), day(end)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !isWeekend(d) {
			out = append(out, d)
		}
	}
	return out
}
