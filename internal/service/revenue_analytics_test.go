package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

type RevenueAnalyticsSuite struct {
	BillingServiceSuite
}

func TestRevenueAnalytics(t *testing.T) {
	suite.Run(t, new(RevenueAnalyticsSuite))
}

func (s *RevenueAnalyticsSuite) withStatus(backerID string, p *price.Price, status types.SubscriptionStatus, at time.Time) *subscription.Subscription {
	sub := s.CreateSubscription(backerID, p)
	s.Require().NoError(sub.TransitionTo(status, at))
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), sub)
	return sub
}

func (s *RevenueAnalyticsSuite) TestRevenueMetrics() {
	supporter, patron, premium := s.monthlyPrices()
	yearly := s.CreatePrice(testCampaignID, types.TierPatron, types.BillingCycleYearly, 12000, "usd")
	euro := s.CreatePrice("camp_eu", types.TierSupporter, types.BillingCycleMonthly, 900, "eur")

	periodStart := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC)

	s.CreateSubscription("b1", supporter)
	s.CreateSubscription("b2", premium)
	s.CreateSubscription("b3", yearly)
	s.CreateSubscription("b4", euro)
	trialing := s.CreateSubscription("b5", patron)
	trialing.Status = types.SubscriptionStatusTrialing
	s.GetStores().SubscriptionRepo.Put(s.GetContext(), trialing)
	s.withStatus("b6", patron, types.SubscriptionStatusPastDue, s.GetNow())
	s.withStatus("b7", patron, types.SubscriptionStatusCanceled, time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC))
	s.withStatus("b8", patron, types.SubscriptionStatusCanceled, time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC))

	// Started after the period began, so it is not part of the churn base.
	s.SetNow(time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC))
	s.CreateSubscription("b9", supporter)

	resp, err := s.analytics.GetRevenueMetrics(s.GetContext(), dto.RevenueMetricsRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	s.Require().NoError(err)

	s.Equal([]dto.MonetaryAmount{
		dto.NewMonetaryAmount("eur", 900),
		dto.NewMonetaryAmount("usd", 10500),
	}, resp.MRR)

	s.Equal(9, resp.Total)
	s.Equal(map[types.SubscriptionStatus]int{
		types.SubscriptionStatusActive:   5,
		types.SubscriptionStatusTrialing: 1,
		types.SubscriptionStatusPastDue:  1,
		types.SubscriptionStatusCanceled: 2,
	}, resp.CountsByStatus)
	s.Equal(map[types.TierType]int{
		types.TierSupporter: 3,
		types.TierPatron:    5,
		types.TierPremium:   1,
	}, resp.CountsByTier)

	s.Equal(7, resp.ActiveAtPeriodStart)
	s.Equal(1, resp.CanceledInPeriod)
	s.True(decimal.RequireFromString("0.1429").Equal(resp.ChurnRate), resp.ChurnRate.String())
	s.True(decimal.RequireFromString("0.8571").Equal(resp.RetentionRate), resp.RetentionRate.String())
}

func (s *RevenueAnalyticsSuite) TestMonthlyAmountsAreRoundedOnce() {
	yearly := s.CreatePrice(testCampaignID, types.TierSupporter, types.BillingCycleYearly, 1000, "usd")
	s.CreateSubscription("b1", yearly)
	s.CreateSubscription("b2", yearly)

	resp, err := s.analytics.GetRevenueMetrics(s.GetContext(), dto.RevenueMetricsRequest{
		PeriodStart: s.GetNow().Add(-24 * time.Hour),
		PeriodEnd:   s.GetNow().Add(24 * time.Hour),
	})
	s.Require().NoError(err)
	s.Require().Len(resp.MRR, 1)
	// 83.33 + 83.33 rounds to 167, not 83 + 83.
	s.Equal(int64(167), resp.MRR[0].Amount)
	s.Equal("1.67", resp.MRR[0].Display)
}

func (s *RevenueAnalyticsSuite) TestEmptyBaseHasNoChurn() {
	resp, err := s.analytics.GetRevenueMetrics(s.GetContext(), dto.RevenueMetricsRequest{
		PeriodStart: s.GetNow(),
		PeriodEnd:   s.GetNow().Add(30 * 24 * time.Hour),
	})
	s.Require().NoError(err)
	s.Empty(resp.MRR)
	s.Zero(resp.Total)
	s.True(resp.ChurnRate.IsZero())
	s.True(decimal.NewFromInt(1).Equal(resp.RetentionRate))
}

func (s *RevenueAnalyticsSuite) TestInvalidPeriod() {
	_, err := s.analytics.GetRevenueMetrics(s.GetContext(), dto.RevenueMetricsRequest{
		PeriodStart: s.GetNow(),
		PeriodEnd:   s.GetNow(),
	})
	s.True(ierr.IsValidation(err))
}
