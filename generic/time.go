package generic

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day (vacation law works in whole days)
// =============================================================================

// DateLayout is the wire and storage format of a TimePoint.
const DateLayout = "2006-01-02"

// TimePoint is a calendar day in UTC. The zero value means "unset".
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar day, in UTC.
func DateOf(t time.Time) TimePoint {
	u := t.UTC()
	return NewTimePoint(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals in tests and fixtures.
func MustDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint  { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddYears(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int              { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month      { return tp.Time.Month() }
func (tp TimePoint) Day() int               { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool           { return tp.Time.IsZero() }
func (tp TimePoint) String() string         { return tp.Time.Format(DateLayout) }
func (tp TimePoint) IsLeapYear() bool       { return IsLeapYear(tp.Year()) }
func (tp TimePoint) StartOfYear() TimePoint { return StartOfYear(tp.Year()) }

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// CLOCK - Injectable "now"
// =============================================================================

// Clock supplies the current instant. Every "today" in the engine comes from a
// Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Set moves it.
type FixedClock struct {
	At time.Time
}

func NewFixedClock(day TimePoint) *FixedClock { return &FixedClock{At: day.Time} }

func (c *FixedClock) Now() time.Time    { return c.At }
func (c *FixedClock) Set(day TimePoint) { c.At = day.Time }
func (c *FixedClock) Advance(days int)  { c.At = c.At.AddDate(0, 0, days) }

// Today returns the clock's current calendar day.
func Today(c Clock) TimePoint { return DateOf(c.Now()) }

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween counts calendar days from one day to another (to - from).
func DaysBetween(from, to TimePoint) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }

// IsLeapYear reports whether the Gregorian year has 366 days.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInYear returns 365 or 366.
func DaysInYear(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

// Days360 counts days between two dates with the 30/360 commercial convention
// (every month has 30 days). The count is the difference of a non-decreasing
// serial, so it is additive over adjacent intervals.
func Days360(from, to TimePoint) int {
	return serial360(to) - serial360(from)
}

func serial360(tp TimePoint) int {
	d := tp.Day()
	if d > 30 {
		d = 30
	}
	return tp.Year()*360 + int(tp.Month())*30 + d
}
