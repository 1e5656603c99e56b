/*
accrual.go - Statutory vacation accrual

PURPOSE:
  Computes how many vacation days an employee has earned between the hire
  date and a given day: 15 days per year of service, pro-rated daily.

PRICING:
  The worked span [hireDate, asOf) is cut at every January 1st. Each
  calendar-year segment is priced at its own year's rate:

    base 365:  netDays * 15 / 365   (15 / 366 in leap years)
    base 360:  netDays * 15 / 360   (netDays counted 30/360)

  netDays = segment days - suspended days inside the segment, both counted
  with the base's convention. The total is scaled by the work-time factor
  (part-time jornada) and rounded to 4 decimals only at the very end.

  Example: 2024-01-01 -> 2025-01-01 under base 365 is 366 days of a leap
  year at 15/366 = exactly 15.0000.

LIVE vs PROJECTION:
  Accrue refuses dates after the clock's today (FutureDate). Project is
  the separate entry point for "what will the balance be on ..." questions.

SEE ALSO:
  - generic/period.go: SplitByCalendarYear, MergePeriods
  - sweep.go: daily recompute of every balance
  - adjustments.go: suspensions and base changes trigger full recomputes
*/
package vacation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// AccrualOptions are the balance attributes accrual depends on.
type AccrualOptions struct {
	Base           CalculationBase
	WorkTimeFactor decimal.Decimal
	Suspensions    []SuspensionPeriod
}

// YearSegment is the accrual of one calendar-year slice of the span.
type YearSegment struct {
	Year          int             `json:"year"`
	Period        generic.Period  `json:"period"`
	Days          int             `json:"days"`
	SuspendedDays int             `json:"suspended_days"`
	YearDays      int             `json:"year_days"`
	Accrued       decimal.Decimal `json:"accrued"`
}

// AccrualResult is the outcome of one accrual computation.
type AccrualResult struct {
	HireDate       generic.TimePoint `json:"hire_date"`
	AsOf           generic.TimePoint `json:"as_of"`
	Base           CalculationBase   `json:"calculation_base"`
	AccruedDays    decimal.Decimal   `json:"accrued_days"`
	DaysWorked     int               `json:"days_worked"`
	SuspendedDays  int               `json:"suspended_days"`
	YearsOfService decimal.Decimal   `json:"years_of_service"`
	Segments       []YearSegment     `json:"segments"`
}

// Calculator computes accrual. It is pure apart from the clock.
type Calculator struct {
	Clock generic.Clock
}

func NewCalculator(clock generic.Clock) *Calculator {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Calculator{Clock: clock}
}

// Accrue computes accrual up to asOf, which must not be after today.
func (c *Calculator) Accrue(hireDate, asOf generic.TimePoint, opts AccrualOptions) (AccrualResult, error) {
	today := generic.Today(c.Clock)
	if asOf.After(today) {
		return AccrualResult{}, generic.NewValidationError(generic.ErrFutureDate, "as_of",
			fmt.Sprintf("%s is after today %s; use a projection", asOf, today))
	}
	return compute(hireDate, asOf, opts)
}

// Project computes accrual for any date on or after the hire date, including
// future ones.
func (c *Calculator) Project(hireDate, asOf generic.TimePoint, opts AccrualOptions) (AccrualResult, error) {
	return compute(hireDate, asOf, opts)
}

func validateOptions(hireDate, asOf generic.TimePoint, opts AccrualOptions) error {
	if hireDate.IsZero() || asOf.IsZero() {
		return generic.NewValidationError(generic.ErrInvalidInput, "date", "hire date and as-of date are required")
	}
	if asOf.Before(hireDate) {
		return generic.NewValidationError(generic.ErrInvalidDateOrder, "as_of",
			fmt.Sprintf("%s is before hire date %s", asOf, hireDate))
	}
	return opts.Validate()
}

// Validate checks the base and the work-time factor, independent of dates.
func (o AccrualOptions) Validate() error {
	if !o.Base.Valid() {
		return generic.NewValidationError(generic.ErrInvalidInput, "calculation_base",
			fmt.Sprintf("unsupported base %d", int(o.Base)))
	}
	if !o.WorkTimeFactor.IsPositive() || o.WorkTimeFactor.GreaterThan(decimal.NewFromInt(1)) {
		return generic.NewValidationError(generic.ErrInvalidInput, "work_time_factor",
			fmt.Sprintf("factor %s must be in (0, 1]", o.WorkTimeFactor))
	}
	return nil
}

func compute(hireDate, asOf generic.TimePoint, opts AccrualOptions) (AccrualResult, error) {
	if err := validateOptions(hireDate, asOf, opts); err != nil {
		return AccrualResult{}, err
	}

	result := AccrualResult{
		HireDate:       hireDate,
		AsOf:           asOf,
		Base:           opts.Base,
		AccruedDays:    decimal.Zero,
		YearsOfService: decimal.Zero,
	}
	if asOf.Equal(hireDate) {
		return result, nil
	}

	span := generic.Period{Start: hireDate, End: asOf.AddDays(-1)}
	suspended := clipSuspensions(opts.Suspensions, span)

	total := decimal.Zero
	years := decimal.Zero
	for _, seg := range span.SplitByCalendarYear() {
		days := opts.Base.CountDays(seg)
		off := 0
		for _, s := range suspended {
			if overlap, ok := seg.Intersect(s); ok {
				off += opts.Base.CountDays(overlap)
			}
		}
		net := days - off
		if net < 0 {
			net = 0
		}

		yearDays := decimal.NewFromInt(int64(opts.Base.YearDays(seg.Start.Year())))
		netDays := decimal.NewFromInt(int64(net))
		accrued := netDays.Mul(AnnualEntitlement).Div(yearDays)

		total = total.Add(accrued)
		years = years.Add(netDays.Div(yearDays))
		result.DaysWorked += net
		result.SuspendedDays += off
		result.Segments = append(result.Segments, YearSegment{
			Year:          seg.Start.Year(),
			Period:        seg,
			Days:          days,
			SuspendedDays: off,
			YearDays:      opts.Base.YearDays(seg.Start.Year()),
			Accrued:       generic.Round4(accrued.Mul(opts.WorkTimeFactor)),
		})
	}

	result.AccruedDays = generic.Round4(total.Mul(opts.WorkTimeFactor))
	result.YearsOfService = generic.Round4(years)
	return result, nil
}

// clipSuspensions merges suspensions and keeps only the days inside span.
func clipSuspensions(suspensions []SuspensionPeriod, span generic.Period) []generic.Period {
	var periods []generic.Period
	for _, s := range suspensions {
		if clipped, ok := s.Period().Intersect(span); ok {
			periods = append(periods, clipped)
		}
	}
	return generic.MergePeriods(periods)
}
