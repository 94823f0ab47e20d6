package postgres

import (
	"context"

	"github.com/vibefunder/billing/internal/domain/price"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/postgres"
	"github.com/vibefunder/billing/internal/types"
)

const priceColumns = `
	id, campaign_id, tier, billing_cycle, unit_amount, currency,
	processor_price_id, active, created_at, updated_at, created_by, updated_by`

type priceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPriceRepository(db *postgres.DB, logger *logger.Logger) price.Repository {
	return &priceRepository{db: db, logger: logger}
}

func (r *priceRepository) Create(ctx context.Context, p *price.Price) error {
	query := `
		INSERT INTO prices (` + priceColumns + `
		) VALUES (
			:id, :campaign_id, :tier, :billing_cycle, :unit_amount, :currency,
			:processor_price_id, :active, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p); err != nil {
		return wrapWriteError(err, "create", "Price", map[string]any{
			"campaign_id":   p.CampaignID,
			"tier":          p.Tier,
			"billing_cycle": p.BillingCycle,
		})
	}
	return nil
}

func (r *priceRepository) Get(ctx context.Context, id string) (*price.Price, error) {
	var p price.Price
	query := `SELECT ` + priceColumns + ` FROM prices WHERE id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, wrapGetError(err, "Price", map[string]any{"price_id": id})
	}
	return &p, nil
}

func (r *priceRepository) GetActive(ctx context.Context, campaignID string, tier types.TierType, cycle types.BillingCycle) (*price.Price, error) {
	var p price.Price
	query := `SELECT ` + priceColumns + ` FROM prices
		WHERE campaign_id = $1 AND tier = $2 AND billing_cycle = $3 AND active`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, campaignID, tier, cycle); err != nil {
		return nil, wrapGetError(err, "Price", map[string]any{
			"campaign_id":   campaignID,
			"tier":          tier,
			"billing_cycle": cycle,
		})
	}
	return &p, nil
}

func (r *priceRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*price.Price, error) {
	var prices []*price.Price
	query := `SELECT ` + priceColumns + ` FROM prices WHERE campaign_id = $1 ORDER BY tier, billing_cycle, id`
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &prices, query, campaignID); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list prices").
			WithHint("Could not list prices").
			Mark(ierr.ErrDatabase)
	}
	return prices, nil
}
