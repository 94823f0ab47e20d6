package service

import (
	"context"

	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/cache"
	"github.com/vibefunder/billing/internal/domain/price"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// PriceCatalogService resolves the payable price of a tier.
type PriceCatalogService interface {
	// Resolve returns the active price for the triple or an ErrPriceResolution marked error.
	Resolve(ctx context.Context, campaignID string, tier types.TierType, cycle types.BillingCycle) (*price.Price, error)
	// Get returns an active price by id or an ErrPriceResolution marked error.
	Get(ctx context.Context, id string) (*price.Price, error)
	CreatePrice(ctx context.Context, req dto.CreatePriceRequest) (*dto.PriceResponse, error)
	GetPrice(ctx context.Context, id string) (*dto.PriceResponse, error)
}

type priceCatalogService struct {
	ServiceParams
}

func NewPriceCatalogService(params ServiceParams) PriceCatalogService {
	return &priceCatalogService{ServiceParams: params}
}

func (s *priceCatalogService) Resolve(ctx context.Context, campaignID string, tier types.TierType, cycle types.BillingCycle) (*price.Price, error) {
	key := cache.GenerateKey(cache.PrefixActivePrice, campaignID, tier, cycle)
	if p, ok := s.cached(ctx, key); ok {
		return p, nil
	}

	p, err := s.PriceRepo.GetActive(ctx, campaignID, tier, cycle)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("No active %s %s price for this campaign", cycle, tier).
				WithReportableDetails(map[string]any{
					"campaign_id":   campaignID,
					"tier":          tier,
					"billing_cycle": cycle,
				}).
				Mark(ierr.ErrPriceResolution)
		}
		return nil, err
	}

	s.Cache.Set(ctx, key, p, s.Config.Cache.PriceTTL)
	return copyPrice(p), nil
}

func (s *priceCatalogService) Get(ctx context.Context, id string) (*price.Price, error) {
	key := cache.GenerateKey(cache.PrefixPrice, id)
	p, ok := s.cached(ctx, key)
	if !ok {
		var err error
		p, err = s.PriceRepo.Get(ctx, id)
		if err != nil {
			if ierr.IsNotFound(err) {
				return nil, ierr.WithError(err).
					WithHint("Price does not exist").
					WithReportableDetails(map[string]any{"price_id": id}).
					Mark(ierr.ErrPriceResolution)
			}
			return nil, err
		}
		s.Cache.Set(ctx, key, p, s.Config.Cache.PriceTTL)
		p = copyPrice(p)
	}

	if !p.Active {
		return nil, ierr.NewError("price is not active").
			WithHint("Price is no longer available").
			WithReportableDetails(map[string]any{"price_id": id}).
			Mark(ierr.ErrPriceResolution)
	}
	return p, nil
}

func (s *priceCatalogService) CreatePrice(ctx context.Context, req dto.CreatePriceRequest) (*dto.PriceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPrice(ctx)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.PriceRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	// A new active price replaces whatever the triple resolved to before.
	s.Cache.DeleteByPrefix(ctx, cache.GenerateKey(cache.PrefixActivePrice, p.CampaignID)+":")

	s.Logger.WithContext(ctx).Infow("created price",
		"price_id", p.ID,
		"campaign_id", p.CampaignID,
		"tier", p.Tier,
		"billing_cycle", p.BillingCycle,
		"unit_amount", p.UnitAmount,
		"currency", p.Currency,
	)
	return &dto.PriceResponse{Price: p}, nil
}

func (s *priceCatalogService) GetPrice(ctx context.Context, id string) (*dto.PriceResponse, error) {
	p, err := s.PriceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PriceResponse{Price: p}, nil
}

func (s *priceCatalogService) cached(ctx context.Context, key string) (*price.Price, bool) {
	v, ok := s.Cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	p, ok := v.(*price.Price)
	if !ok {
		return nil, false
	}
	return copyPrice(p), true
}

// copyPrice keeps callers from mutating the cached value.
func copyPrice(p *price.Price) *price.Price {
	c := *p
	return &c
}
