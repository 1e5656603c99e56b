package generic

import (
	"fmt"
	"sort"
)

// =============================================================================
// PERIOD - Closed day interval [Start, End]
// =============================================================================

// Period is an inclusive range of calendar days. Vacation requests, suspensions
// and historical service periods are all Periods.
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// NewPeriod validates that start <= end.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate rejects unset bounds and end-before-start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return NewValidationError(ErrInvalidDates, "period", "start and end are required")
	}
	if p.End.Before(p.Start) {
		return NewValidationError(ErrInvalidDates, "period",
			fmt.Sprintf("end %s is before start %s", p.End, p.Start))
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// DayCount is the number of calendar days in the period, both ends included.
func (p Period) DayCount() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// DayCount360 is the number of commercial (30/360) days in the period.
func (p Period) DayCount360() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return Days360(p.Start, p.End.AddDays(1))
}

// Overlaps reports whether two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.End.Before(other.Start) && !other.End.Before(p.Start)
}

// Intersect returns the shared days of two periods.
func (p Period) Intersect(other Period) (Period, bool) {
	if !p.Overlaps(other) {
		return Period{}, false
	}
	start, end := p.Start, p.End
	if other.Start.After(start) {
		start = other.Start
	}
	if other.End.Before(end) {
		end = other.End
	}
	return Period{Start: start, End: end}, true
}

// SplitByCalendarYear cuts the period at every January 1st.
//
//	[2023-06-01, 2025-02-10] -> [2023-06-01, 2023-12-31]
//	                            [2024-01-01, 2024-12-31]
//	                            [2025-01-01, 2025-02-10]
func (p Period) SplitByCalendarYear() []Period {
	if p.End.Before(p.Start) {
		return nil
	}
	var out []Period
	start := p.Start
	for start.Year() < p.End.Year() {
		end := EndOfYear(start.Year())
		out = append(out, Period{Start: start, End: end})
		start = StartOfYear(start.Year() + 1)
	}
	return append(out, Period{Start: start, End: p.End})
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// MergePeriods sorts periods and coalesces overlapping or adjacent ones so no
// day is counted twice.
func MergePeriods(periods []Period) []Period {
	if len(periods) == 0 {
		return nil
	}
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Period{sorted[0]}
	for _, p := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !p.Start.After(last.End.AddDays(1)) {
			if p.End.After(last.End) {
				last.End = p.End
			}
			continue
		}
		merged = append(merged, p)
	}
	return merged
}
