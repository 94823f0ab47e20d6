package price

import (
	"context"

	"github.com/vibefunder/billing/internal/types"
)

type Repository interface {
	Create(ctx context.Context, p *Price) error
	Get(ctx context.Context, id string) (*Price, error)
	// GetActive returns the active price for the triple or an ErrNotFound marked error.
	GetActive(ctx context.Context, campaignID string, tier types.TierType, cycle types.BillingCycle) (*Price, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*Price, error)
}
