package subscription

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// Subscription is a backer's recurring pledge to a campaign.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	CampaignID string `db:"campaign_id" json:"campaign_id"`
	BackerID   string `db:"backer_id" json:"backer_id"`

	Tier         types.TierType           `db:"tier" json:"tier"`
	BillingCycle types.BillingCycle       `db:"billing_cycle" json:"billing_cycle"`
	Status       types.SubscriptionStatus `db:"subscription_status" json:"status"`

	// PriceID, UnitAmount and Currency are copied from the price when it is assigned
	// so analytics can be computed from the subscriptions table alone.
	PriceID    string `db:"price_id" json:"price_id"`
	UnitAmount int64  `db:"unit_amount" json:"unit_amount"`
	Currency   string `db:"currency" json:"currency"`

	// PriorPriceID is the price replaced by the last migration.
	PriorPriceID *string `db:"prior_price_id" json:"prior_price_id,omitempty"`

	CurrentPeriodStart time.Time `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `db:"current_period_end" json:"current_period_end"`

	CancelAtPeriodEnd bool       `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CanceledAt        *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`
	PausedAt          *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	TrialEnd          *time.Time `db:"trial_end" json:"trial_end,omitempty"`
	StartedAt         time.Time  `db:"started_at" json:"started_at"`

	// DiscountID is the processor promotion code applied at creation.
	DiscountID             *string `db:"discount_id" json:"discount_id,omitempty"`
	DefaultPaymentMethodID *string `db:"default_payment_method_id" json:"default_payment_method_id,omitempty"`

	// ScheduledDowngradeTier is applied at the next period rollover.
	ScheduledDowngradeTier *types.TierType `db:"scheduled_downgrade_tier" json:"scheduled_downgrade_tier,omitempty"`
	GracePeriodEnd         *time.Time      `db:"grace_period_end" json:"grace_period_end,omitempty"`

	ProcessorSubscriptionID string `db:"processor_subscription_id" json:"processor_subscription_id"`
	ProcessorCustomerID     string `db:"processor_customer_id" json:"processor_customer_id"`

	// Version is incremented by every successful write.
	Version  int            `db:"version" json:"version"`
	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	types.BaseModel
}

// MonthlyAmount normalizes the unit amount (minor units) to a month. Yearly amounts
// are divided by twelve without rounding; callers round once after summing.
func (s *Subscription) MonthlyAmount() decimal.Decimal {
	return decimal.NewFromInt(s.UnitAmount).Div(decimal.NewFromInt(s.BillingCycle.MonthsPerCycle()))
}

// InGracePeriod reports whether dunning has attached a grace period that has not yet expired.
func (s *Subscription) InGracePeriod(now time.Time) bool {
	return s.GracePeriodEnd != nil && now.Before(*s.GracePeriodEnd)
}

// InTrial reports whether at falls before the end of a trial.
func (s *Subscription) InTrial(at time.Time) bool {
	return s.TrialEnd != nil && at.Before(*s.TrialEnd)
}

// GraceExpired reports whether a grace period is attached and over.
func (s *Subscription) GraceExpired(now time.Time) bool {
	return s.GracePeriodEnd != nil && !now.Before(*s.GracePeriodEnd)
}

// AttachGracePeriod starts dunning's grace window. A scheduled downgrade cannot
// coexist with a grace period, so it is dropped.
func (s *Subscription) AttachGracePeriod(end time.Time) {
	s.ScheduledDowngradeTier = nil
	s.GracePeriodEnd = &end
}

// ClearGracePeriod removes any grace window.
func (s *Subscription) ClearGracePeriod() {
	s.GracePeriodEnd = nil
}

// ScheduleDowngrade records the tier to switch to at the next rollover.
func (s *Subscription) ScheduleDowngrade(tier types.TierType) error {
	if s.GracePeriodEnd != nil {
		return ierr.NewError("subscription has a grace period attached").
			WithHint("A downgrade cannot be scheduled while a payment is being recovered").
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
			}).
			Mark(ierr.ErrInvalidTransition)
	}
	s.ScheduledDowngradeTier = &tier
	return nil
}

// Validate checks the row level invariants.
func (s *Subscription) Validate() error {
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return ierr.NewError("current period end must be after current period start").
			WithHint("Invalid billing period").
			WithReportableDetails(map[string]any{
				"current_period_start": s.CurrentPeriodStart,
				"current_period_end":   s.CurrentPeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.ScheduledDowngradeTier != nil && s.GracePeriodEnd != nil {
		return ierr.NewError("scheduled downgrade and grace period are both set").
			WithHint("Subscription has conflicting pending changes").
			Mark(ierr.ErrValidation)
	}
	if err := s.Status.Validate(); err != nil {
		return err
	}
	if err := s.Tier.Validate(); err != nil {
		return err
	}
	return s.BillingCycle.Validate()
}

// AdvancePeriod moves the current period forward until it contains now.
func (s *Subscription) AdvancePeriod(now time.Time) error {
	for !s.CurrentPeriodEnd.After(now) {
		next, err := types.NextBillingDate(s.CurrentPeriodEnd, s.BillingCycle)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Could not compute the next billing period").
				Mark(ierr.ErrSystem)
		}
		s.CurrentPeriodStart = s.CurrentPeriodEnd
		s.CurrentPeriodEnd = next
	}
	return nil
}

// Copy returns a deep copy. Repositories hand out copies so callers cannot
// mutate stored state without going through Update.
func (s *Subscription) Copy() *Subscription {
	c := *s
	c.Metadata = s.Metadata.Clone()
	c.PriorPriceID = copyPtr(s.PriorPriceID)
	c.CanceledAt = copyPtr(s.CanceledAt)
	c.PausedAt = copyPtr(s.PausedAt)
	c.TrialEnd = copyPtr(s.TrialEnd)
	c.DiscountID = copyPtr(s.DiscountID)
	c.DefaultPaymentMethodID = copyPtr(s.DefaultPaymentMethodID)
	c.ScheduledDowngradeTier = copyPtr(s.ScheduledDowngradeTier)
	c.GracePeriodEnd = copyPtr(s.GracePeriodEnd)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
