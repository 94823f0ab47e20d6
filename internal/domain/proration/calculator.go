package proration

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// Calculator prorates a price change. Implementations differ only in how they
// measure the elapsed part of the period.
type Calculator interface {
	Calculate(params Params) (*Result, error)
	ElapsedFraction(periodStart, periodEnd, at time.Time, timezone string) (decimal.Decimal, error)
}

// NewCalculator creates a proration calculator for the strategy. Unknown
// strategies fall back to second based.
func NewCalculator(strategy types.ProrationStrategy) Calculator {
	switch strategy {
	case types.ProrationStrategyDayBased:
		return &calculator{strategy: strategy, elapsed: dayBasedElapsed}
	default:
		return &calculator{strategy: types.ProrationStrategySecondBased, elapsed: secondBasedElapsed}
	}
}

type elapsedFunc func(start, end, at time.Time, loc *time.Location) (decimal.Decimal, error)

type calculator struct {
	strategy types.ProrationStrategy
	elapsed  elapsedFunc
}

// Compute applies the proration policy to full-period amounts:
//
//	credit = -(old * (1 - elapsed))
//	charge =   new * (1 - elapsed)
//	net    = credit + charge
//
// Each side is rounded to minor units half-up on its magnitude before netting.
func Compute(oldAmount, newAmount int64, elapsed decimal.Decimal) Amounts {
	remaining := decimal.NewFromInt(1).Sub(clampFraction(elapsed))

	credit := decimal.NewFromInt(oldAmount).Mul(remaining).Round(0).IntPart()
	charge := decimal.NewFromInt(newAmount).Mul(remaining).Round(0).IntPart()

	return Amounts{
		CreditAmount: -credit,
		ChargeAmount: charge,
		NetAmount:    charge - credit,
	}
}

func (c *calculator) ElapsedFraction(periodStart, periodEnd, at time.Time, timezone string) (decimal.Decimal, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return decimal.Zero, err
	}
	return c.elapsed(periodStart, periodEnd, at, loc)
}

func (c *calculator) Calculate(params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid proration request").
			Mark(ierr.ErrValidation)
	}

	fraction, err := c.ElapsedFraction(params.CurrentPeriodStart, params.CurrentPeriodEnd, params.ProrationDate, params.Timezone)
	if err != nil {
		return nil, err
	}

	amounts := Compute(params.OldAmount, params.NewAmount, fraction)

	return &Result{
		Amounts: amounts,
		Credit: LineItem{
			Description: creditDescription(params.Action),
			Amount:      amounts.CreditAmount,
			PriceID:     params.OldPriceID,
			StartDate:   params.ProrationDate,
			EndDate:     params.CurrentPeriodEnd,
			IsCredit:    true,
		},
		Charge: LineItem{
			Description: chargeDescription(params.Action),
			Amount:      amounts.ChargeAmount,
			PriceID:     params.NewPriceID,
			StartDate:   params.ProrationDate,
			EndDate:     params.CurrentPeriodEnd,
		},
		ElapsedFraction: fraction,
		Currency:        params.Currency,
		Action:          params.Action,
		ProrationDate:   params.ProrationDate,
		Strategy:        c.strategy,
	}, nil
}

func secondBasedElapsed(start, end, at time.Time, _ *time.Location) (decimal.Decimal, error) {
	total := end.Sub(start)
	if total <= 0 {
		return decimal.Zero, invalidPeriod(start, end)
	}
	elapsed := at.Sub(start)
	return clampFraction(decimal.NewFromInt(int64(elapsed / time.Second)).
		Div(decimal.NewFromInt(int64(total / time.Second)))), nil
}

func dayBasedElapsed(start, end, at time.Time, loc *time.Location) (decimal.Decimal, error) {
	totalDays := daysInDurationWithDST(start.In(loc), end.In(loc), loc)
	if totalDays <= 0 {
		return decimal.Zero, invalidPeriod(start, end)
	}

	// The day of the change counts as remaining.
	remainingDays := daysInDurationWithDST(at.In(loc), end.In(loc), loc)
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	remaining := decimal.NewFromInt(int64(remainingDays)).Div(decimal.NewFromInt(int64(totalDays)))
	return clampFraction(decimal.NewFromInt(1).Sub(remaining)), nil
}

// daysInDurationWithDST counts calendar days between two instants using day
// boundaries in loc, so DST transitions do not add or lose a day.
func daysInDurationWithDST(start, end time.Time, loc *time.Location) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)

	days := 0
	current := startDay
	for current.Before(endDay) {
		days++
		next := current.Add(24 * time.Hour)
		current = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
	}
	return days
}

func clampFraction(f decimal.Decimal) decimal.Decimal {
	if f.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if f.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return f
}

func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Unknown timezone %q", timezone).
			Mark(ierr.ErrValidation)
	}
	return loc, nil
}

func invalidPeriod(start, end time.Time) error {
	return ierr.NewError("invalid billing period").
		WithHintf("Billing period %s to %s is empty", start.Format(time.RFC3339), end.Format(time.RFC3339)).
		Mark(ierr.ErrValidation)
}

func creditDescription(action Action) string {
	switch action {
	case ActionDowngrade:
		return "Credit for unused time on previous tier before downgrade"
	case ActionUpgrade:
		return "Credit for unused time on previous tier before upgrade"
	default:
		return "Credit for unused time"
	}
}

func chargeDescription(action Action) string {
	switch action {
	case ActionUpgrade:
		return "Prorated charge for upgrade"
	case ActionDowngrade:
		return "Prorated charge for downgrade"
	default:
		return "Prorated charge"
	}
}

func validateParams(params Params) error {
	if params.ProrationDate.IsZero() {
		return fmt.Errorf("proration date is required")
	}
	if params.CurrentPeriodStart.IsZero() || params.CurrentPeriodEnd.IsZero() {
		return fmt.Errorf("billing period start and end dates are required")
	}
	if !params.CurrentPeriodEnd.After(params.CurrentPeriodStart) {
		return fmt.Errorf("billing period end date must be after start date")
	}
	if params.OldAmount < 0 || params.NewAmount < 0 {
		return fmt.Errorf("amounts must not be negative")
	}
	return nil
}
