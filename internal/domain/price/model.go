package price

import (
	"strings"

	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// Price is the payable amount for one (campaign, tier, cycle) triple.
type Price struct {
	ID           string             `db:"id" json:"id"`
	CampaignID   string             `db:"campaign_id" json:"campaign_id"`
	Tier         types.TierType     `db:"tier" json:"tier"`
	BillingCycle types.BillingCycle `db:"billing_cycle" json:"billing_cycle"`

	// UnitAmount is charged once per cycle, in minor currency units.
	UnitAmount int64  `db:"unit_amount" json:"unit_amount"`
	Currency   string `db:"currency" json:"currency"`

	// ProcessorPriceID is the Stripe price the subscription item points at.
	ProcessorPriceID string `db:"processor_price_id" json:"processor_price_id"`
	Active           bool   `db:"active" json:"active"`

	types.BaseModel
}

func (p *Price) Validate() error {
	if p.CampaignID == "" {
		return ierr.NewError("campaign_id is required").
			WithHint("Campaign is required").
			Mark(ierr.ErrValidation)
	}
	if err := p.Tier.Validate(); err != nil {
		return err
	}
	if err := p.BillingCycle.Validate(); err != nil {
		return err
	}
	if p.UnitAmount <= 0 {
		return ierr.NewError("unit amount must be positive").
			WithHint("Price amount must be greater than zero").
			WithReportableDetails(map[string]any{
				"unit_amount": p.UnitAmount,
			}).
			Mark(ierr.ErrValidation)
	}
	if len(p.Currency) != 3 {
		return ierr.NewError("currency must be a three letter code").
			WithHint("Invalid currency").
			Mark(ierr.ErrValidation)
	}
	if p.ProcessorPriceID == "" {
		return ierr.NewError("processor_price_id is required").
			WithHint("Processor price is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NormalizeCurrency lower cases the currency the way the processor reports it.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}
