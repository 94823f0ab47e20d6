package types

import (
	"github.com/samber/lo"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// SubscriptionStatus follows Stripe's naming for the subset a pledge can be in.
// https://stripe.com/docs/api/subscriptions/object#subscription_object-status
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusPaused   SubscriptionStatus = "paused"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusPaused,
		SubscriptionStatusCanceled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsRecurringRevenue reports whether subscriptions in this status count towards MRR.
func (s SubscriptionStatus) IsRecurringRevenue() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// TierType is the pledge level a backer supports a campaign at.
type TierType string

const (
	TierSupporter TierType = "supporter"
	TierPatron    TierType = "patron"
	TierPremium   TierType = "premium"
)

var tierRank = map[TierType]int{
	TierSupporter: 1,
	TierPatron:    2,
	TierPremium:   3,
}

// Rank orders tiers from cheapest to most expensive. Unknown tiers rank 0.
func (t TierType) Rank() int {
	return tierRank[t]
}

func (t TierType) String() string {
	return string(t)
}

func (t TierType) Validate() error {
	if t.Rank() == 0 {
		return ierr.NewError("invalid tier type").
			WithHint("Tier must be one of supporter, patron or premium").
			WithReportableDetails(map[string]any{
				"tier": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BillingCycle is how often a pledge renews.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) String() string {
	return string(c)
}

func (c BillingCycle) Validate() error {
	allowed := []BillingCycle{BillingCycleMonthly, BillingCycleYearly}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid billing cycle").
			WithHint("Billing cycle must be monthly or yearly").
			WithReportableDetails(map[string]any{
				"billing_cycle":  c,
				"allowed_cycles": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// MonthsPerCycle is the divisor used to normalize a cycle's amount to a monthly one.
func (c BillingCycle) MonthsPerCycle() int64 {
	if c == BillingCycleYearly {
		return 12
	}
	return 1
}

// ChangeMode selects when and whether a subscription change takes effect.
type ChangeMode string

const (
	ChangeModeImmediate   ChangeMode = "immediate"
	ChangeModePreview     ChangeMode = "preview"
	ChangeModeAtPeriodEnd ChangeMode = "at_period_end"
)

var (
	UpgradeModes   = []ChangeMode{ChangeModeImmediate, ChangeModePreview}
	DowngradeModes = []ChangeMode{ChangeModeAtPeriodEnd, ChangeModeImmediate}
	CancelModes    = []ChangeMode{ChangeModeAtPeriodEnd, ChangeModeImmediate}
)

// ValidateFor checks the mode against the modes an operation accepts.
func (m ChangeMode) ValidateFor(allowed []ChangeMode) error {
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid change mode").
			WithHint("Unsupported mode for this operation").
			WithReportableDetails(map[string]any{
				"mode":          m,
				"allowed_modes": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
