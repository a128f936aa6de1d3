package features

import "time"

// HolidayCalendar reports public holidays.
type HolidayCalendar interface {
	IsHoliday(t time.Time) bool
}

type fixedHoliday struct {
	month time.Month
	day   int
	since int
}

// KenyaHolidays is the Kenyan public holiday calendar: the fixed national days,
// Good Friday and Easter Monday. A fixed holiday falling on a Sunday is also
// observed on the following Monday.
type KenyaHolidays struct{}

var kenyaFixed = []fixedHoliday{
	{time.January, 1, 1963},
	{time.May, 1, 1963},
	{time.June, 1, 1963},
	{time.October, 10, 2018},
	{time.October, 20, 2010},
	{time.December, 12, 1963},
	{time.December, 25, 1963},
	{time.December, 26, 1963},
}

// IsHoliday reports whether t falls on a Kenyan public holiday.
func (KenyaHolidays) IsHoliday(t time.Time) bool {
	y, m, d := t.Date()
	if isFixedKenyaHoliday(y, m, d) {
		return true
	}
	if t.Weekday() == time.Monday {
		prev := time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC)
		if isFixedKenyaHoliday(prev.Year(), prev.Month(), prev.Day()) {
			return true
		}
	}

	easter := easterSunday(y)
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return date.Equal(easter.AddDate(0, 0, -2)) || date.Equal(easter.AddDate(0, 0, 1))
}

func isFixedKenyaHoliday(y int, m time.Month, d int) bool {
	for _, h := range kenyaFixed {
		if h.month == m && h.day == d && y >= h.since {
			return true
		}
	}
	return false
}

// easterSunday returns Western Easter for year y (anonymous Gregorian computus).
func easterSunday(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
