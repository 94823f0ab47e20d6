package testutil

import (
	"context"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

var _ subscription.Repository = (*InMemorySubscriptionStore)(nil)

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

// subscriptionFilterFn implements filtering logic for subscriptions
func subscriptionFilterFn(ctx context.Context, sub *subscription.Subscription, filter interface{}) bool {
	if sub == nil {
		return false
	}

	f, ok := filter.(*subscription.Filter)
	if !ok || f == nil {
		return true
	}

	if f.BackerID != "" && sub.BackerID != f.BackerID {
		return false
	}
	if f.CampaignID != "" && sub.CampaignID != f.CampaignID {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, sub.Status) {
		return false
	}
	if f.PeriodEndBefore != nil && sub.CurrentPeriodEnd.After(*f.PeriodEndBefore) {
		return false
	}
	if f.GraceEndBefore != nil && (sub.GracePeriodEnd == nil || sub.GracePeriodEnd.After(*f.GraceEndBefore)) {
		return false
	}
	if f.AfterID != "" && sub.ID <= f.AfterID {
		return false
	}
	return true
}

func subscriptionSortFn(i, j *subscription.Subscription) bool {
	return i.ID < j.ID
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if sub.ProcessorSubscriptionID != "" {
		if _, err := s.GetByProcessorID(ctx, sub.ProcessorSubscriptionID); err == nil {
			return ierr.NewError("processor subscription already linked").
				WithHint("Subscription already exists").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, sub.ID, sub.Copy())
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub.Copy(), nil
}

func (s *InMemorySubscriptionStore) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	return s.Get(ctx, id)
}

func (s *InMemorySubscriptionStore) GetByProcessorID(ctx context.Context, processorSubscriptionID string) (*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, sub *subscription.Subscription, _ interface{}) bool {
		return sub.ProcessorSubscriptionID == processorSubscriptionID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHintf("No subscription for processor subscription %s", processorSubscriptionID).
			Mark(ierr.ErrNotFound)
	}
	return subs[0].Copy(), nil
}

// Update applies the same optimistic version check as the Postgres repository.
func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	err := s.InMemoryStore.Mutate(ctx, sub.ID, func(current *subscription.Subscription, exists bool) (*subscription.Subscription, error) {
		if !exists {
			return nil, ierr.NewError("subscription not found").
				Mark(ierr.ErrNotFound)
		}
		if current.Version != sub.Version {
			return nil, ierr.NewError("subscription version is stale").
				WithHint("Subscription was modified concurrently").
				WithReportableDetails(map[string]any{
					"subscription_id": sub.ID,
					"version":         sub.Version,
				}).
				Mark(ierr.ErrConcurrentModification)
		}
		next := sub.Copy()
		next.Version++
		return next, nil
	})
	if err != nil {
		return err
	}
	sub.Version++
	return nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *subscription.Filter) ([]*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, filter, subscriptionFilterFn, subscriptionSortFn)
	if err != nil {
		return nil, err
	}
	if filter != nil && filter.Limit > 0 && len(subs) > filter.Limit {
		subs = subs[:filter.Limit]
	}
	return lo.Map(subs, func(sub *subscription.Subscription, _ int) *subscription.Subscription {
		return sub.Copy()
	}), nil
}

func (s *InMemorySubscriptionStore) ListAll(ctx context.Context) ([]*subscription.Subscription, error) {
	return s.List(ctx, nil)
}

// Put overwrites a stored subscription without a version check. Tests use it to
// arrange state the services would take several steps to reach.
func (s *InMemorySubscriptionStore) Put(ctx context.Context, sub *subscription.Subscription) {
	_ = s.InMemoryStore.Mutate(ctx, sub.ID, func(_ *subscription.Subscription, _ bool) (*subscription.Subscription, error) {
		return sub.Copy(), nil
	})
}
