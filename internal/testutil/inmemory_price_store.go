package testutil

import (
	"context"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/domain/price"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// InMemoryPriceStore implements price.Repository
type InMemoryPriceStore struct {
	*InMemoryStore[*price.Price]

	// reads counts Get and GetActive calls so tests can observe caching.
	reads int
}

var _ price.Repository = (*InMemoryPriceStore)(nil)

func NewInMemoryPriceStore() *InMemoryPriceStore {
	return &InMemoryPriceStore{
		InMemoryStore: NewInMemoryStore[*price.Price](),
	}
}

func copyPrice(p *price.Price) *price.Price {
	c := *p
	return &c
}

func sameTriple(campaignID string, tier types.TierType, cycle types.BillingCycle) FilterFunc[*price.Price] {
	return func(_ context.Context, p *price.Price, _ interface{}) bool {
		return p.CampaignID == campaignID && p.Tier == tier && p.BillingCycle == cycle && p.Active
	}
}

func (s *InMemoryPriceStore) Create(ctx context.Context, p *price.Price) error {
	if p.Active {
		existing, _ := s.InMemoryStore.Count(ctx, nil, sameTriple(p.CampaignID, p.Tier, p.BillingCycle))
		if existing > 0 {
			return ierr.NewError("active price already exists").
				WithHint("Price already exists").
				WithReportableDetails(map[string]any{
					"campaign_id":   p.CampaignID,
					"tier":          p.Tier,
					"billing_cycle": p.BillingCycle,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, p.ID, copyPrice(p))
}

func (s *InMemoryPriceStore) Get(ctx context.Context, id string) (*price.Price, error) {
	s.countRead()
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyPrice(p), nil
}

func (s *InMemoryPriceStore) GetActive(ctx context.Context, campaignID string, tier types.TierType, cycle types.BillingCycle) (*price.Price, error) {
	s.countRead()
	prices, err := s.InMemoryStore.List(ctx, nil, sameTriple(campaignID, tier, cycle), nil)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, ierr.NewError("price not found").
			WithHint("Price not found").
			WithReportableDetails(map[string]any{
				"campaign_id":   campaignID,
				"tier":          tier,
				"billing_cycle": cycle,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copyPrice(prices[0]), nil
}

func (s *InMemoryPriceStore) ListByCampaign(ctx context.Context, campaignID string) ([]*price.Price, error) {
	prices, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, p *price.Price, _ interface{}) bool {
		return p.CampaignID == campaignID
	}, func(i, j *price.Price) bool {
		if i.Tier != j.Tier {
			return i.Tier < j.Tier
		}
		if i.BillingCycle != j.BillingCycle {
			return i.BillingCycle < j.BillingCycle
		}
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(prices, func(p *price.Price, _ int) *price.Price { return copyPrice(p) }), nil
}

// Deactivate flips a stored price to inactive.
func (s *InMemoryPriceStore) Deactivate(ctx context.Context, id string) {
	_ = s.InMemoryStore.Mutate(ctx, id, func(p *price.Price, exists bool) (*price.Price, error) {
		if !exists {
			return nil, ierr.NewError("price not found").Mark(ierr.ErrNotFound)
		}
		c := copyPrice(p)
		c.Active = false
		return c, nil
	})
}

func (s *InMemoryPriceStore) countRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
}

// Reads returns the number of repository reads so far.
func (s *InMemoryPriceStore) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}
