package vacation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func days(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDays(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, days(want).Equal(got), "want %s, got %s", want, got.String())
}

func fullTime(base CalculationBase) AccrualOptions {
	return AccrualOptions{Base: base, WorkTimeFactor: decimal.NewFromInt(1)}
}

func calculatorAt(day string) *Calculator {
	return NewCalculator(generic.NewFixedClock(generic.MustDate(day)))
}

// =============================================================================
// BASE 365
// =============================================================================

func TestAccrue_FullYearIsFifteenDays(t *testing.T) {
	// GIVEN: An employee hired on 2023-01-01 under base 365
	// WHEN: Accruing to 2024-01-01
	// THEN: Exactly 15 days accrue

	calc := calculatorAt("2024-06-01")
	res, err := calc.Accrue(generic.MustDate("2023-01-01"), generic.MustDate("2024-01-01"), fullTime(Base365))

	require.NoError(t, err)
	assertDays(t, "15", res.AccruedDays)
	assert.Equal(t, 365, res.DaysWorked)
	assertDays(t, "1", res.YearsOfService)
}

func TestAccrue_LeapYearIsFifteenDays(t *testing.T) {
	calc := calculatorAt("2025-06-01")
	res, err := calc.Accrue(generic.MustDate("2024-01-01"), generic.MustDate("2025-01-01"), fullTime(Base365))

	require.NoError(t, err)
	assertDays(t, "15", res.AccruedDays)
	assert.Equal(t, 366, res.DaysWorked)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, 366, res.Segments[0].YearDays)
}

func TestAccrue_SpanAcrossYearsUsesEachYearsRate(t *testing.T) {
	// GIVEN: A span from mid-2023 to mid-2024
	// WHEN: Accruing under base 365
	// THEN: 2023 days are priced at 15/365 and 2024 days at 15/366

	calc := calculatorAt("2024-12-31")
	res, err := calc.Accrue(generic.MustDate("2023-07-01"), generic.MustDate("2024-07-01"), fullTime(Base365))

	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 184, res.Segments[0].Days)
	assert.Equal(t, 365, res.Segments[0].YearDays)
	assert.Equal(t, 182, res.Segments[1].Days)
	assert.Equal(t, 366, res.Segments[1].YearDays)
	// 184*15/365 + 182*15/366
	assertDays(t, "15.0207", res.AccruedDays)
}

func TestAccrue_HireDayAccruesNothing(t *testing.T) {
	calc := calculatorAt("2024-01-01")
	res, err := calc.Accrue(generic.MustDate("2024-01-01"), generic.MustDate("2024-01-01"), fullTime(Base365))

	require.NoError(t, err)
	assert.True(t, res.AccruedDays.IsZero())
	assert.Empty(t, res.Segments)
}

// =============================================================================
// BASE 360
// =============================================================================

func TestAccrue_Base360(t *testing.T) {
	calc := calculatorAt("2024-06-01")

	res, err := calc.Accrue(generic.MustDate("2023-01-01"), generic.MustDate("2024-01-01"), fullTime(Base360))
	require.NoError(t, err)
	assertDays(t, "15", res.AccruedDays)
	assert.Equal(t, 360, res.DaysWorked)

	// February counts as a full 30-day month
	res, err = calc.Accrue(generic.MustDate("2023-02-01"), generic.MustDate("2023-03-01"), fullTime(Base360))
	require.NoError(t, err)
	assert.Equal(t, 30, res.DaysWorked)
	assertDays(t, "1.25", res.AccruedDays)
}

// =============================================================================
// SUSPENSIONS AND FACTOR
// =============================================================================

func TestAccrue_SuspensionsReduceNetDays(t *testing.T) {
	calc := calculatorAt("2024-06-01")
	hire, asOf := generic.MustDate("2023-01-01"), generic.MustDate("2024-01-01")

	t.Run("full span suspended accrues zero", func(t *testing.T) {
		opts := fullTime(Base365)
		opts.Suspensions = []SuspensionPeriod{{StartDate: hire, EndDate: generic.MustDate("2023-12-31")}}

		res, err := calc.Accrue(hire, asOf, opts)
		require.NoError(t, err)
		assert.True(t, res.AccruedDays.IsZero())
		assert.Equal(t, 365, res.SuspendedDays)
	})

	t.Run("half year suspended", func(t *testing.T) {
		opts := fullTime(Base365)
		opts.Suspensions = []SuspensionPeriod{{StartDate: hire, EndDate: generic.MustDate("2023-06-30")}}

		res, err := calc.Accrue(hire, asOf, opts)
		require.NoError(t, err)
		assert.Equal(t, 181, res.SuspendedDays)
		assertDays(t, "7.5616", res.AccruedDays)
	})

	t.Run("overlapping suspensions are not counted twice", func(t *testing.T) {
		opts := fullTime(Base365)
		opts.Suspensions = []SuspensionPeriod{
			{StartDate: generic.MustDate("2023-03-01"), EndDate: generic.MustDate("2023-03-20")},
			{StartDate: generic.MustDate("2023-03-10"), EndDate: generic.MustDate("2023-03-31")},
		}

		res, err := calc.Accrue(hire, asOf, opts)
		require.NoError(t, err)
		assert.Equal(t, 31, res.SuspendedDays)
	})

	t.Run("suspension after as-of is ignored", func(t *testing.T) {
		opts := fullTime(Base365)
		opts.Suspensions = []SuspensionPeriod{{StartDate: generic.MustDate("2024-02-01"), EndDate: generic.MustDate("2024-02-10")}}

		res, err := calc.Accrue(hire, asOf, opts)
		require.NoError(t, err)
		assertDays(t, "15", res.AccruedDays)
	})
}

func TestAccrue_WorkTimeFactor(t *testing.T) {
	calc := calculatorAt("2024-06-01")
	opts := fullTime(Base365)
	opts.WorkTimeFactor = days("0.5")

	res, err := calc.Accrue(generic.MustDate("2023-01-01"), generic.MustDate("2024-01-01"), opts)
	require.NoError(t, err)
	assertDays(t, "7.5", res.AccruedDays)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAccrue_Rejections(t *testing.T) {
	calc := calculatorAt("2024-01-01")
	hire := generic.MustDate("2023-01-01")

	tests := []struct {
		name string
		asOf generic.TimePoint
		opts AccrualOptions
		rule error
	}{
		{"future date", generic.MustDate("2024-01-02"), fullTime(Base365), generic.ErrFutureDate},
		{"before hire", generic.MustDate("2022-12-31"), fullTime(Base365), generic.ErrInvalidDateOrder},
		{"unknown base", generic.MustDate("2023-06-01"), fullTime(CalculationBase(300)), generic.ErrInvalidInput},
		{"zero factor", generic.MustDate("2023-06-01"), AccrualOptions{Base: Base365, WorkTimeFactor: decimal.Zero}, generic.ErrInvalidInput},
		{"factor above one", generic.MustDate("2023-06-01"), AccrualOptions{Base: Base365, WorkTimeFactor: days("1.5")}, generic.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Accrue(hire, tt.asOf, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, generic.ErrValidation))
			assert.ErrorIs(t, err, tt.rule)
		})
	}
}

func TestProject_AllowsFutureDates(t *testing.T) {
	calc := calculatorAt("2024-01-01")

	res, err := calc.Project(generic.MustDate("2023-01-01"), generic.MustDate("2024-01-02"), fullTime(Base365))
	require.NoError(t, err)
	// 15 + 15/366
	assertDays(t, "15.041", res.AccruedDays)

	_, err = calc.Project(generic.MustDate("2023-01-01"), generic.MustDate("2022-01-01"), fullTime(Base365))
	assert.ErrorIs(t, err, generic.ErrInvalidDateOrder)
}

func TestAccrue_MonotonicInAsOf(t *testing.T) {
	// GIVEN: A fixed hire date and a suspension in the middle of the span
	// WHEN: Moving the as-of date forward one day at a time
	// THEN: Accrued days never decrease

	calc := calculatorAt("2026-01-01")
	hire := generic.MustDate("2023-11-15")
	opts := fullTime(Base360)
	opts.Suspensions = []SuspensionPeriod{{StartDate: generic.MustDate("2024-02-20"), EndDate: generic.MustDate("2024-03-05")}}

	prev := decimal.Zero
	for asOf := hire; asOf.Before(generic.MustDate("2025-03-01")); asOf = asOf.AddDays(1) {
		res, err := calc.Accrue(hire, asOf, opts)
		require.NoError(t, err)
		require.True(t, res.AccruedDays.GreaterThanOrEqual(prev), "accrual dropped at %s: %s < %s", asOf, res.AccruedDays, prev)
		prev = res.AccruedDays
	}
}
