package subscription

import (
	"time"

	"github.com/samber/lo"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// transitions lists the allowed outbound statuses for every status.
// canceled is terminal.
var transitions = map[types.SubscriptionStatus][]types.SubscriptionStatus{
	types.SubscriptionStatusTrialing: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusCanceled,
	},
	types.SubscriptionStatusActive: {
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusPaused,
		types.SubscriptionStatusCanceled,
	},
	types.SubscriptionStatusPastDue: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusCanceled,
	},
	types.SubscriptionStatusPaused: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusCanceled,
	},
	types.SubscriptionStatusCanceled: {},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to types.SubscriptionStatus) bool {
	return lo.Contains(transitions[from], to)
}

// InitialStatus is trialing when a trial was requested and active otherwise.
func InitialStatus(trialDays int) types.SubscriptionStatus {
	if trialDays > 0 {
		return types.SubscriptionStatusTrialing
	}
	return types.SubscriptionStatusActive
}

// TransitionTo moves the subscription to status, stamping the timestamps tied to it.
// Transitioning to the current status is rejected; callers that want idempotency
// check the status first.
func (s *Subscription) TransitionTo(status types.SubscriptionStatus, at time.Time) error {
	if !CanTransition(s.Status, status) {
		return ierr.NewError("invalid subscription status transition").
			WithHintf("Subscription cannot move from %s to %s", s.Status, status).
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
				"from":            s.Status,
				"to":              status,
			}).
			Mark(ierr.ErrInvalidTransition)
	}

	switch status {
	case types.SubscriptionStatusCanceled:
		s.CanceledAt = &at
		s.CancelAtPeriodEnd = false
		s.ScheduledDowngradeTier = nil
		s.GracePeriodEnd = nil
		s.PausedAt = nil
	case types.SubscriptionStatusPaused:
		s.PausedAt = &at
	case types.SubscriptionStatusActive:
		s.PausedAt = nil
		s.GracePeriodEnd = nil
	}

	s.Status = status
	return nil
}

// IsCanceled reports whether the subscription reached the terminal state.
func (s *Subscription) IsCanceled() bool {
	return s.Status == types.SubscriptionStatusCanceled
}

// RequireNotCanceled fails with InvalidTransition for canceled subscriptions.
func (s *Subscription) RequireNotCanceled() error {
	if s.IsCanceled() {
		return ierr.NewError("subscription is canceled").
			WithHint("This subscription has been canceled and can no longer be changed").
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
			}).
			Mark(ierr.ErrInvalidTransition)
	}
	return nil
}
