package dto

import (
	"context"

	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/types"
	"github.com/vibefunder/billing/internal/validator"
)

type CreatePriceRequest struct {
	CampaignID       string             `json:"campaign_id" validate:"required"`
	Tier             types.TierType     `json:"tier" validate:"required"`
	BillingCycle     types.BillingCycle `json:"billing_cycle" validate:"required"`
	UnitAmount       int64              `json:"unit_amount" validate:"required,gt=0"`
	Currency         string             `json:"currency" validate:"required,len=3"`
	ProcessorPriceID string             `json:"processor_price_id" validate:"required"`
}

func (r *CreatePriceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Tier.Validate(); err != nil {
		return err
	}
	return r.BillingCycle.Validate()
}

func (r *CreatePriceRequest) ToPrice(ctx context.Context) *price.Price {
	return &price.Price{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRICE),
		CampaignID:       r.CampaignID,
		Tier:             r.Tier,
		BillingCycle:     r.BillingCycle,
		UnitAmount:       r.UnitAmount,
		Currency:         price.NormalizeCurrency(r.Currency),
		ProcessorPriceID: r.ProcessorPriceID,
		Active:           true,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
}

type PriceResponse struct {
	*price.Price
}
