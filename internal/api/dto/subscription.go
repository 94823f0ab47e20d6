package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibefunder/billing/internal/domain/proration"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
	"github.com/vibefunder/billing/internal/validator"
)

type CreateSubscriptionRequest struct {
	CampaignID   string             `json:"campaign_id" validate:"required"`
	BackerID     string             `json:"backer_id" validate:"required"`
	Tier         types.TierType     `json:"tier" validate:"required"`
	BillingCycle types.BillingCycle `json:"billing_cycle" validate:"required"`
	TrialDays    int                `json:"trial_days" validate:"min=0,max=730"`
	DiscountCode string             `json:"discount_code,omitempty" validate:"omitempty,max=255"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Tier.Validate(); err != nil {
		return err
	}
	return r.BillingCycle.Validate()
}

type CreateSubscriptionResponse struct {
	SubscriptionID string                   `json:"subscription_id"`
	Status         types.SubscriptionStatus `json:"status"`
	Warnings       Warnings                 `json:"warnings,omitempty"`
}

type SubscriptionResponse struct {
	*subscription.Subscription
	Warnings Warnings `json:"warnings,omitempty"`
}

// ChangeTierRequest is the body of both the upgrade and the downgrade endpoints.
type ChangeTierRequest struct {
	NewTier types.TierType   `json:"new_tier" validate:"required"`
	Mode    types.ChangeMode `json:"mode" validate:"required"`
}

// Validate checks the request against the modes the operation accepts.
func (r *ChangeTierRequest) Validate(allowed []types.ChangeMode) error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.NewTier.Validate(); err != nil {
		return err
	}
	return r.Mode.ValidateFor(allowed)
}

type ProrationResponse struct {
	CreditAmount    int64                   `json:"credit_amount"`
	ChargeAmount    int64                   `json:"charge_amount"`
	NetAmount       int64                   `json:"net_amount"`
	Currency        string                  `json:"currency"`
	ElapsedFraction decimal.Decimal         `json:"elapsed_fraction"`
	ProrationDate   time.Time               `json:"proration_date"`
	Strategy        types.ProrationStrategy `json:"strategy"`
	Credit          proration.LineItem      `json:"credit"`
	Charge          proration.LineItem      `json:"charge"`
	// InvoiceID is set when the change wrote a local proration invoice.
	InvoiceID string `json:"invoice_id,omitempty"`
}

func NewProrationResponse(result *proration.Result) *ProrationResponse {
	return &ProrationResponse{
		CreditAmount:    result.CreditAmount,
		ChargeAmount:    result.ChargeAmount,
		NetAmount:       result.NetAmount,
		Currency:        result.Currency,
		ElapsedFraction: result.ElapsedFraction,
		ProrationDate:   result.ProrationDate,
		Strategy:        result.Strategy,
		Credit:          result.Credit,
		Charge:          result.Charge,
	}
}

type ChangeTierResponse struct {
	SubscriptionID         string                   `json:"subscription_id"`
	Status                 types.SubscriptionStatus `json:"status"`
	Tier                   types.TierType           `json:"tier"`
	Mode                   types.ChangeMode         `json:"mode"`
	ScheduledDowngradeTier *types.TierType          `json:"scheduled_downgrade_tier,omitempty"`
	Proration              *ProrationResponse       `json:"proration,omitempty"`
	Warnings               Warnings                 `json:"warnings,omitempty"`
}

type CancelSubscriptionRequest struct {
	Mode types.ChangeMode `json:"mode" validate:"required"`
}

func (r *CancelSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Mode.ValidateFor(types.CancelModes)
}

type CancelSubscriptionResponse struct {
	SubscriptionID    string                   `json:"subscription_id"`
	Status            types.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	CanceledAt        *time.Time               `json:"canceled_at,omitempty"`
	Warnings          Warnings                 `json:"warnings,omitempty"`
}

type MigrateSubscriptionRequest struct {
	NewPriceID string `json:"new_price_id" validate:"required"`
}

func (r *MigrateSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type UpdatePaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

func (r *UpdatePaymentMethodRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !strings.HasPrefix(r.PaymentMethodID, "pm_") {
		return ierr.NewError("payment method id has an unexpected format").
			WithHint("Payment method id must start with pm_").
			WithReportableDetails(map[string]any{
				"payment_method_id": r.PaymentMethodID,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

type ListBackerSubscriptionsResponse struct {
	BackerID      string                  `json:"backer_id"`
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
	// TotalMonthlyAmount has one entry per currency the backer pledges in.
	TotalMonthlyAmount []MonetaryAmount `json:"total_monthly_amount"`
}
