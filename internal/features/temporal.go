package features

import (
	"math"
	"time"

	"github.com/rewired-gh/unrestwatch/internal/logger"
)

// Temporal columns.
const (
	ColYear      = "year"
	ColMonth     = "month"
	ColWeek      = "week"
	ColDay       = "day"
	ColDayOfWeek = "dayofweek"
	ColHour      = "hour"
	ColWeekend   = "is_weekend"
	ColHoliday   = "is_holiday"
	ColMonthSin  = "month_sin"
	ColMonthCos  = "month_cos"
	ColDaySin    = "day_sin"
	ColDayCos    = "day_cos"
	ColHourSin   = "hour_sin"
	ColHourCos   = "hour_cos"
)

// Temporal adds calendar and cyclical time columns. Undated rows get none.
func (e *Engineer) Temporal(in *Frame) *Frame {
	f := in.Clone()
	skipped := 0
	for i := range f.rows {
		if !f.rows[i].Dated() {
			skipped++
			continue
		}
		t := f.rows[i].Post.Post.Timestamp
		_, week := t.ISOWeek()
		month, day, hour := float64(t.Month()), float64(t.Day()), float64(t.Hour())
		dow := DayOfWeek(t)

		f.set(i, ColYear, float64(t.Year()))
		f.set(i, ColMonth, month)
		f.set(i, ColWeek, float64(week))
		f.set(i, ColDay, day)
		f.set(i, ColDayOfWeek, float64(dow))
		f.set(i, ColHour, hour)
		f.set(i, ColWeekend, boolFloat(dow >= 5))
		f.set(i, ColHoliday, boolFloat(e.cfg.Holidays != nil && e.cfg.Holidays.IsHoliday(t)))
		f.set(i, ColMonthSin, math.Sin(2*math.Pi*month/12))
		f.set(i, ColMonthCos, math.Cos(2*math.Pi*month/12))
		f.set(i, ColDaySin, math.Sin(2*math.Pi*day/31))
		f.set(i, ColDayCos, math.Cos(2*math.Pi*day/31))
		f.set(i, ColHourSin, math.Sin(2*math.Pi*hour/24))
		f.set(i, ColHourCos, math.Cos(2*math.Pi*hour/24))
	}
	if skipped > 0 {
		logger.Debug("Temporal features skipped for %d undated rows", skipped)
	}
	return f
}

// DayOfWeek numbers weekdays from Monday=0 to Sunday=6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
