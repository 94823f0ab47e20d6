package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

type SubscriptionRolloverSuite struct {
	BillingServiceSuite
}

func TestSubscriptionRollover(t *testing.T) {
	suite.Run(t, new(SubscriptionRolloverSuite))
}

func (s *SubscriptionRolloverSuite) TestCancelAtPeriodEndTakesEffect() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)

	_, err := s.subscriptions.CancelSubscription(s.GetContext(), sub.ID, dto.CancelSubscriptionRequest{Mode: types.ChangeModeAtPeriodEnd})
	s.Require().NoError(err)

	// Nothing happens locally before the period ends, but the processor was
	// already told not to renew.
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Zero(result.Processed)
	s.Len(s.GetGateway().Calls("SetCancelAtPeriodEnd"), 1)

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Hour))
	result, err = s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Processed)
	s.Equal(1, result.Canceled)

	stored := s.Reload(sub.ID)
	s.Equal(types.SubscriptionStatusCanceled, stored.Status)
	s.False(stored.CancelAtPeriodEnd)
	s.Require().NotNil(stored.CanceledAt)
	s.Equal(sub.CurrentPeriodEnd, *stored.CanceledAt)

	canceled := s.GetGateway().Calls("CancelSubscription")
	s.Require().Len(canceled, 1)
	s.Equal(sub.ProcessorSubscriptionID, canceled[0].ProcessorSubscriptionID)

	s.Equal([]types.NotificationType{
		types.NotificationCancellationConfirmed,
		types.NotificationBenefitsRevoked,
	}, s.GetPublisher().SentTypes(sub.ID))

	// A second run finds nothing left to do.
	result, err = s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Zero(result.Processed)
}

func (s *SubscriptionRolloverSuite) TestAdvancesOverdueSubscriptions() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)

	s.Advance(95 * 24 * time.Hour)
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Processed)
	s.Zero(result.Failed)

	stored := s.Reload(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.Status)
	s.assertPeriodValid(stored)
	s.False(stored.CurrentPeriodStart.After(s.GetNow()))
	s.True(stored.CurrentPeriodEnd.After(s.GetNow()))
	s.Equal(time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC), stored.CurrentPeriodStart)
}

func (s *SubscriptionRolloverSuite) TestActivatesFinishedTrial() {
	s.monthlyPrices()

	resp, err := s.subscriptions.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		CampaignID:   testCampaignID,
		BackerID:     "backer_1",
		Tier:         types.TierPatron,
		BillingCycle: types.BillingCycleMonthly,
		TrialDays:    14,
	})
	s.Require().NoError(err)
	sub := s.Reload(resp.SubscriptionID)

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Minute))
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Activated)

	stored := s.Reload(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.Status)
	s.assertPeriodValid(stored)
}

func (s *SubscriptionRolloverSuite) TestSkipsPausedAndCanceled() {
	_, patron, _ := s.monthlyPrices()

	paused := s.CreateSubscription("backer_1", patron)
	s.Require().NoError(paused.TransitionTo(types.SubscriptionStatusPaused, s.GetNow()))
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), paused)

	canceled := s.CreateSubscription("backer_2", patron)
	s.Require().NoError(canceled.TransitionTo(types.SubscriptionStatusCanceled, s.GetNow()))
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), canceled)

	s.Advance(40 * 24 * time.Hour)
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Zero(result.Processed)

	s.Equal(paused.CurrentPeriodEnd, s.Reload(paused.ID).CurrentPeriodEnd)
	s.Equal(canceled.CurrentPeriodEnd, s.Reload(canceled.ID).CurrentPeriodEnd)
}

func (s *SubscriptionRolloverSuite) TestProcessesEveryBatch() {
	s.GetConfig().Billing.SweepBatchSize = 2
	s.buildServices()

	_, patron, _ := s.monthlyPrices()
	ids := make([]string, 0, 5)
	for _, backer := range []string{"b1", "b2", "b3", "b4", "b5"} {
		ids = append(ids, s.CreateSubscription(backer, patron).ID)
	}

	s.Advance(32 * 24 * time.Hour)
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(5, result.Processed)
	s.Zero(result.Failed)

	for _, id := range ids {
		s.True(s.Reload(id).CurrentPeriodEnd.After(s.GetNow()))
	}
}

func (s *SubscriptionRolloverSuite) TestProcessorFailureLeavesSubscriptionForNextRun() {
	_, patron, _ := s.monthlyPrices()
	sub := s.CreateSubscription("backer_1", patron)
	_, err := s.subscriptions.CancelSubscription(s.GetContext(), sub.ID, dto.CancelSubscriptionRequest{Mode: types.ChangeModeAtPeriodEnd})
	s.Require().NoError(err)

	s.GetGateway().FailNext("CancelSubscription", ierr.NewError("stripe is down").
		WithHint("Payment processor is unavailable").
		Mark(ierr.ErrProcessorUnavailable))

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Hour))
	result, err := s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Failed)

	stored := s.Reload(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.Status)
	s.True(stored.CancelAtPeriodEnd)

	result, err = s.subscriptions.RolloverPeriods(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, result.Canceled)
	s.Equal(types.SubscriptionStatusCanceled, s.Reload(sub.ID).Status)

	// Both runs used the same key so the processor sees one cancellation.
	calls := s.GetGateway().Calls("CancelSubscription")
	s.Require().Len(calls, 2)
	s.Equal(calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}
