package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/aa"
	"github.com/rickar/cal/v2/us"
)

// NYSEの休場ルールを検証済みの年の範囲です。
const (
	MinYear = 2000
	MaxYear = 2099
)

// ErrOutOfRange は対応範囲外の年を要求された場合に返されます。
var ErrOutOfRange = errors.New("calendar: year out of supported range")

var (
	// 元日が土曜の場合、NYSEは前日の金曜を休場にしない。
	nyseNewYear = &cal.Holiday{
		Name:     "New Year's Day",
		Type:     cal.ObservancePublic,
		Month:    time.January,
		Day:      1,
		Observed: []cal.AltDay{{Day: time.Sunday, Offset: 1}},
		Func:     cal.CalcDayOfMonth,
	}

	// 連邦祝日化は2021年だが、NYSEの休場は2022年から。
	nyseJuneteenth = &cal.Holiday{
		Name:      "Juneteenth National Independence Day",
		Type:      cal.ObservancePublic,
		Month:     time.June,
		Day:       19,
		Observed:  []cal.AltDay{{Day: time.Saturday, Offset: -1}, {Day: time.Sunday, Offset: 1}},
		StartYear: 2022,
		Func:      cal.CalcDayOfMonth,
	}

	nyseHolidays = []*cal.Holiday{
		nyseNewYear,
		us.MlkDay,
		us.PresidentsDay,
		aa.GoodFriday,
		us.MemorialDay,
		nyseJuneteenth,
		us.IndependenceDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
	}
)

// specialClosures はルールで表現できない臨時休場日です。
var specialClosures = []struct {
	name string
	day  time.Time
}{
	{"September 11", date(2001, time.September, 11)},
	{"September 11", date(2001, time.September, 12)},
	{"September 11", date(2001, time.September, 13)},
	{"September 11", date(2001, time.September, 14)},
	{"Reagan funeral", date(2004, time.June, 11)},
	{"Ford funeral", date(2007, time.January, 2)},
	{"Hurricane Sandy", date(2012, time.October, 29)},
	{"Hurricane Sandy", date(2012, time.October, 30)},
	{"G.H.W. Bush funeral", date(2018, time.December, 5)},
	{"Carter funeral", date(2025, time.January, 9)},
}

// NYSE はニューヨーク証券取引所の休場ルールから営業日を算出します。
type NYSE struct {
	bc *cal.BusinessCalendar
}

// NewNYSE は定例休場日と臨時休場日を登録したNYSEカレンダーを生成します。
func NewNYSE() *NYSE {
	bc := cal.NewBusinessCalendar()
	bc.AddHoliday(nyseHolidays...)
	for _, sc := range specialClosures {
		bc.AddHoliday(&cal.Holiday{
			Name:      sc.name,
			Month:     sc.day.Month(),
			Day:       sc.day.Day(),
			StartYear: sc.day.Year(),
			EndYear:   sc.day.Year(),
			Func:      cal.CalcDayOfMonth,
		})
	}
	return &NYSE{bc: bc}
}

// TradingDays は[start, end]の日付範囲(両端含む)の取引日をUTC 0時で昇順に返します。
func (n *NYSE) TradingDays(start, end time.Time) ([]time.Time, error) {
	from, to := day(start), day(end)
	if to.Before(from) {
		return nil, nil
	}
	if from.Year() < MinYear || to.Year() > MaxYear {
		return nil, fmt.Errorf("%w: %d-%d", ErrOutOfRange, from.Year(), to.Year())
	}

	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if n.bc.IsWorkday(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return date(t.Year(), t.Month(), t.Day())
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
