package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/types"
)

// RevenueAnalyticsService computes revenue metrics from one snapshot of all subscriptions.
type RevenueAnalyticsService interface {
	GetRevenueMetrics(ctx context.Context, req dto.RevenueMetricsRequest) (*dto.RevenueMetricsResponse, error)
}

type revenueAnalyticsService struct {
	ServiceParams
}

func NewRevenueAnalyticsService(params ServiceParams) RevenueAnalyticsService {
	return &revenueAnalyticsService{ServiceParams: params}
}

func (s *revenueAnalyticsService) GetRevenueMetrics(ctx context.Context, req dto.RevenueMetricsRequest) (*dto.RevenueMetricsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	subs, err := s.SubRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	periodStart := req.PeriodStart.UTC()
	periodEnd := req.PeriodEnd.UTC()

	resp := &dto.RevenueMetricsResponse{
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		MRR:            monthlyRecurringTotals(subs),
		CountsByStatus: make(map[types.SubscriptionStatus]int),
		CountsByTier:   make(map[types.TierType]int),
		Total:          len(subs),
	}

	for _, sub := range subs {
		resp.CountsByStatus[sub.Status]++
		resp.CountsByTier[sub.Tier]++

		if !activeAt(sub, periodStart) {
			continue
		}
		resp.ActiveAtPeriodStart++
		if canceledWithin(sub, periodStart, periodEnd) {
			resp.CanceledInPeriod++
		}
	}

	resp.ChurnRate, resp.RetentionRate = churnAndRetention(resp.CanceledInPeriod, resp.ActiveAtPeriodStart)

	s.Logger.WithContext(ctx).Debugw("computed revenue metrics",
		"subscriptions", len(subs),
		"active_at_period_start", resp.ActiveAtPeriodStart,
		"canceled_in_period", resp.CanceledInPeriod,
	)
	return resp, nil
}

// monthlyRecurringTotals sums the monthly normalized amount of every active or
// trialing subscription per currency. Rounding happens once per currency, half up.
func monthlyRecurringTotals(subs []*subscription.Subscription) []dto.MonetaryAmount {
	sums := make(map[string]decimal.Decimal)
	for _, sub := range subs {
		if !sub.Status.IsRecurringRevenue() {
			continue
		}
		sums[sub.Currency] = sums[sub.Currency].Add(sub.MonthlyAmount())
	}

	currencies := make([]string, 0, len(sums))
	for c := range sums {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	totals := make([]dto.MonetaryAmount, 0, len(currencies))
	for _, c := range currencies {
		totals = append(totals, dto.NewMonetaryAmount(c, sums[c].Round(0).IntPart()))
	}
	return totals
}

// activeAt reports whether the subscription had started and was not yet canceled at t.
func activeAt(sub *subscription.Subscription, t time.Time) bool {
	if !sub.StartedAt.Before(t) {
		return false
	}
	return sub.CanceledAt == nil || !sub.CanceledAt.Before(t)
}

func canceledWithin(sub *subscription.Subscription, start, end time.Time) bool {
	return sub.CanceledAt != nil && !sub.CanceledAt.Before(start) && sub.CanceledAt.Before(end)
}

// churnAndRetention returns canceled/base and its complement. An empty base has
// no churn.
func churnAndRetention(canceled, base int) (decimal.Decimal, decimal.Decimal) {
	if base == 0 {
		return decimal.Zero, decimal.NewFromInt(1)
	}
	churn := decimal.NewFromInt(int64(canceled)).Div(decimal.NewFromInt(int64(base))).Round(4)
	return churn, decimal.NewFromInt(1).Sub(churn)
}
