package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from types.SubscriptionStatus
		to   types.SubscriptionStatus
		want bool
	}{
		{types.SubscriptionStatusTrialing, types.SubscriptionStatusActive, true},
		{types.SubscriptionStatusActive, types.SubscriptionStatusPastDue, true},
		{types.SubscriptionStatusPastDue, types.SubscriptionStatusActive, true},
		{types.SubscriptionStatusPastDue, types.SubscriptionStatusCanceled, true},
		{types.SubscriptionStatusActive, types.SubscriptionStatusPaused, true},
		{types.SubscriptionStatusPaused, types.SubscriptionStatusActive, true},
		{types.SubscriptionStatusPaused, types.SubscriptionStatusPastDue, false},
		{types.SubscriptionStatusPastDue, types.SubscriptionStatusPaused, false},
		{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing, false},
		{types.SubscriptionStatusCanceled, types.SubscriptionStatusActive, false},
		{types.SubscriptionStatusCanceled, types.SubscriptionStatusCanceled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, types.SubscriptionStatusTrialing, InitialStatus(14))
	assert.Equal(t, types.SubscriptionStatusActive, InitialStatus(0))
}

func TestTransitionTo(t *testing.T) {
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	grace := now.Add(7 * 24 * time.Hour)

	t.Run("cancel clears pending changes", func(t *testing.T) {
		tier := types.TierSupporter
		sub := &Subscription{
			ID:                     "subs_1",
			Status:                 types.SubscriptionStatusActive,
			CancelAtPeriodEnd:      true,
			ScheduledDowngradeTier: &tier,
		}
		require.NoError(t, sub.TransitionTo(types.SubscriptionStatusCanceled, now))
		assert.Equal(t, types.SubscriptionStatusCanceled, sub.Status)
		assert.False(t, sub.CancelAtPeriodEnd)
		assert.Nil(t, sub.ScheduledDowngradeTier)
		require.NotNil(t, sub.CanceledAt)
		assert.True(t, now.Equal(*sub.CanceledAt))
	})

	t.Run("recovery clears grace period", func(t *testing.T) {
		sub := &Subscription{ID: "subs_2", Status: types.SubscriptionStatusPastDue, GracePeriodEnd: &grace}
		require.NoError(t, sub.TransitionTo(types.SubscriptionStatusActive, now))
		assert.Nil(t, sub.GracePeriodEnd)
	})

	t.Run("canceled is terminal", func(t *testing.T) {
		sub := &Subscription{ID: "subs_3", Status: types.SubscriptionStatusCanceled}
		err := sub.TransitionTo(types.SubscriptionStatusActive, now)
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidTransition(err))
		assert.Error(t, sub.RequireNotCanceled())
	})
}

func TestScheduleDowngradeAndGraceAreExclusive(t *testing.T) {
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{ID: "subs_1", Status: types.SubscriptionStatusActive}

	require.NoError(t, sub.ScheduleDowngrade(types.TierSupporter))
	sub.AttachGracePeriod(now.Add(24 * time.Hour))
	assert.Nil(t, sub.ScheduledDowngradeTier)

	err := sub.ScheduleDowngrade(types.TierSupporter)
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidTransition(err))
}

func TestAdvancePeriod(t *testing.T) {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{
		BillingCycle:       types.BillingCycleMonthly,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
	}

	now := time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sub.AdvancePeriod(now))
	assert.True(t, sub.CurrentPeriodEnd.After(now))
	assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart))
	assert.False(t, sub.CurrentPeriodStart.After(now))
}

func TestMonthlyAmount(t *testing.T) {
	yearly := &Subscription{UnitAmount: 24000, BillingCycle: types.BillingCycleYearly}
	monthly := &Subscription{UnitAmount: 2500, BillingCycle: types.BillingCycleMonthly}
	assert.Equal(t, "2000", yearly.MonthlyAmount().String())
	assert.Equal(t, "2500", monthly.MonthlyAmount().String())
}
