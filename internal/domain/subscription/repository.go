package subscription

import (
	"context"
	"time"

	"github.com/vibefunder/billing/internal/types"
)

// Filter narrows subscription listings. Zero values mean "no constraint".
type Filter struct {
	BackerID   string
	CampaignID string
	Statuses   []types.SubscriptionStatus

	// PeriodEndBefore selects subscriptions whose current period ended at or before the time.
	PeriodEndBefore *time.Time
	// GraceEndBefore selects subscriptions whose grace period ended at or before the time.
	GraceEndBefore *time.Time

	// AfterID is a keyset cursor; results are ordered by id.
	AfterID string
	Limit   int
}

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// GetForUpdate reads the row and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Subscription, error)
	GetByProcessorID(ctx context.Context, processorSubscriptionID string) (*Subscription, error)
	// Update writes sub only if the stored version equals sub.Version, then increments
	// sub.Version. A mismatch returns an error marked ErrConcurrentModification.
	Update(ctx context.Context, sub *Subscription) error
	List(ctx context.Context, filter *Filter) ([]*Subscription, error)
	// ListAll returns every subscription in one consistent read.
	ListAll(ctx context.Context) ([]*Subscription, error)
}
