package types

import (
	"github.com/samber/lo"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// ProrationStrategy defines how the elapsed fraction of a period is measured.
type ProrationStrategy string

const (
	ProrationStrategyDayBased    ProrationStrategy = "day_based"
	ProrationStrategySecondBased ProrationStrategy = "second_based"
)

func (s ProrationStrategy) Validate() error {
	allowed := []ProrationStrategy{ProrationStrategyDayBased, ProrationStrategySecondBased}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid proration strategy").
			WithHint("Invalid proration strategy").
			WithReportableDetails(map[string]any{
				"strategy":           s,
				"allowed_strategies": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ProrationBehavior is passed to the processor on price changes.
type ProrationBehavior string

const (
	ProrationBehaviorCreateProrations ProrationBehavior = "create_prorations"
	ProrationBehaviorAlwaysInvoice    ProrationBehavior = "always_invoice"
	ProrationBehaviorNone             ProrationBehavior = "none"
)

func (p ProrationBehavior) String() string {
	return string(p)
}

func (p ProrationBehavior) Validate() error {
	allowed := []ProrationBehavior{
		ProrationBehaviorCreateProrations,
		ProrationBehaviorAlwaysInvoice,
		ProrationBehaviorNone,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid proration behavior").
			WithHint("Invalid proration behavior").
			WithReportableDetails(map[string]any{
				"proration_behavior": p,
				"allowed_behaviors":  allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
