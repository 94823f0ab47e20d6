package dto

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
	"github.com/vibefunder/billing/internal/validator"
)

type RevenueMetricsRequest struct {
	PeriodStart time.Time `form:"period_start" json:"period_start" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	PeriodEnd   time.Time `form:"period_end" json:"period_end" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
}

func (r *RevenueMetricsRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.PeriodEnd.After(r.PeriodStart) {
		return ierr.NewError("period_end must be after period_start").
			WithHint("Analytics period end must be after its start").
			WithReportableDetails(map[string]any{
				"period_start": r.PeriodStart,
				"period_end":   r.PeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

type RevenueMetricsResponse struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	// MRR has one entry per currency.
	MRR []MonetaryAmount `json:"mrr"`

	ActiveAtPeriodStart int             `json:"active_at_period_start"`
	CanceledInPeriod    int             `json:"canceled_in_period"`
	ChurnRate           decimal.Decimal `json:"churn_rate"`
	RetentionRate       decimal.Decimal `json:"retention_rate"`

	CountsByStatus map[types.SubscriptionStatus]int `json:"counts_by_status"`
	CountsByTier   map[types.TierType]int           `json:"counts_by_tier"`
	Total          int                              `json:"total"`
}
