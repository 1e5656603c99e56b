package generic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func period(start, end string) Period {
	return Period{Start: MustDate(start), End: MustDate(end)}
}

func TestNewPeriod_RejectsReversedAndUnset(t *testing.T) {
	_, err := NewPeriod(MustDate("2024-02-10"), MustDate("2024-02-01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, ErrInvalidDates))

	_, err = NewPeriod(TimePoint{}, MustDate("2024-02-01"))
	assert.ErrorIs(t, err, ErrInvalidDates)

	p, err := NewPeriod(MustDate("2024-02-01"), MustDate("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.DayCount())
}

func TestPeriod_DayCount(t *testing.T) {
	tests := []struct {
		name    string
		p       Period
		civil   int
		days360 int
	}{
		{"civil year", period("2023-01-01", "2023-12-31"), 365, 360},
		{"leap year", period("2024-01-01", "2024-12-31"), 366, 360},
		{"february", period("2023-02-01", "2023-02-28"), 28, 30},
		{"leap february", period("2024-02-01", "2024-02-29"), 29, 30},
		{"31-day month", period("2024-01-01", "2024-01-31"), 31, 30},
		{"single day", period("2024-03-15", "2024-03-15"), 1, 1},
		{"reversed", period("2024-03-15", "2024-03-14"), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.civil, tt.p.DayCount())
			assert.Equal(t, tt.days360, tt.p.DayCount360())
		})
	}
}

func TestDays360_AdditiveOverAdjacentSpans(t *testing.T) {
	// GIVEN: A span cut at arbitrary days, including the 31st and February end
	// WHEN: Counting each piece with 30/360
	// THEN: The pieces add up to the whole

	a, b, c, d := MustDate("2023-01-31"), MustDate("2023-02-28"), MustDate("2023-03-31"), MustDate("2023-08-15")
	whole := Days360(a, d)
	assert.Equal(t, whole, Days360(a, b)+Days360(b, c)+Days360(c, d))
	assert.GreaterOrEqual(t, Days360(a, b), 0)
}

func TestPeriod_Overlaps(t *testing.T) {
	base := period("2024-02-01", "2024-02-07")

	assert.True(t, base.Overlaps(period("2024-02-07", "2024-02-10")), "shared last day")
	assert.True(t, base.Overlaps(period("2024-01-20", "2024-02-01")), "shared first day")
	assert.True(t, base.Overlaps(period("2024-02-03", "2024-02-04")), "contained")
	assert.False(t, base.Overlaps(period("2024-02-08", "2024-02-10")), "adjacent")
	assert.False(t, base.Overlaps(period("2024-01-01", "2024-01-31")), "before")
}

func TestPeriod_Intersect(t *testing.T) {
	got, ok := period("2024-01-15", "2024-03-10").Intersect(period("2024-02-01", "2024-12-31"))
	require.True(t, ok)
	assert.Equal(t, period("2024-02-01", "2024-03-10"), got)

	_, ok = period("2024-01-01", "2024-01-31").Intersect(period("2024-02-01", "2024-02-02"))
	assert.False(t, ok)
}

func TestPeriod_SplitByCalendarYear(t *testing.T) {
	parts := period("2023-06-01", "2025-02-10").SplitByCalendarYear()

	require.Len(t, parts, 3)
	assert.Equal(t, period("2023-06-01", "2023-12-31"), parts[0])
	assert.Equal(t, period("2024-01-01", "2024-12-31"), parts[1])
	assert.Equal(t, period("2025-01-01", "2025-02-10"), parts[2])

	single := period("2024-03-01", "2024-03-31").SplitByCalendarYear()
	assert.Equal(t, []Period{period("2024-03-01", "2024-03-31")}, single)
}

func TestMergePeriods(t *testing.T) {
	merged := MergePeriods([]Period{
		period("2024-03-01", "2024-03-10"),
		period("2024-01-01", "2024-01-10"),
		period("2024-01-05", "2024-01-20"), // overlaps the previous one
		period("2024-01-21", "2024-01-25"), // adjacent
		period("2024-03-05", "2024-03-06"), // contained
	})

	assert.Equal(t, []Period{
		period("2024-01-01", "2024-01-25"),
		period("2024-03-01", "2024-03-10"),
	}, merged)
	assert.Nil(t, MergePeriods(nil))
}
