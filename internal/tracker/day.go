package tracker

import "time"

// DayLayout is the storage format of a Day.
const DayLayout = "2006-01-02"

// Day is a local calendar date in YYYY-MM-DD form.
type Day string

// DayOf returns the calendar day of t in loc.
// A nil loc means time.Local.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	return Day(t.In(loc).Format(DayLayout))
}

// Valid reports whether d parses as a calendar date.
func (d Day) Valid() bool {
	_, err := time.Parse(DayLayout, string(d))
	return err == nil
}

// String returns the storage form of the day.
func (d Day) String() string {
	return string(d)
}

// Clock supplies wall time for day boundaries.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
