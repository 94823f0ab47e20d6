package testutil

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/domain/dunning"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// InMemoryDunningStore implements dunning.Repository. Rows are keyed by
// (invoice, attempt number) like the unique index in Postgres.
type InMemoryDunningStore struct {
	*InMemoryStore[*dunning.Attempt]
}

var _ dunning.Repository = (*InMemoryDunningStore)(nil)

func NewInMemoryDunningStore() *InMemoryDunningStore {
	return &InMemoryDunningStore{
		InMemoryStore: NewInMemoryStore[*dunning.Attempt](),
	}
}

func attemptKey(invoiceID string, number int) string {
	return fmt.Sprintf("%s:%d", invoiceID, number)
}

func copyAttempt(a *dunning.Attempt) *dunning.Attempt {
	c := *a
	return &c
}

func (s *InMemoryDunningStore) Create(ctx context.Context, attempt *dunning.Attempt) error {
	return s.InMemoryStore.Create(ctx, attemptKey(attempt.InvoiceID, attempt.AttemptNumber), copyAttempt(attempt))
}

func (s *InMemoryDunningStore) Get(ctx context.Context, invoiceID string, attemptNumber int) (*dunning.Attempt, error) {
	a, err := s.InMemoryStore.Get(ctx, attemptKey(invoiceID, attemptNumber))
	if err != nil {
		return nil, err
	}
	return copyAttempt(a), nil
}

func (s *InMemoryDunningStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*dunning.Attempt, error) {
	return s.list(ctx, func(a *dunning.Attempt) bool {
		return a.SubscriptionID == subscriptionID
	})
}

func (s *InMemoryDunningStore) ListPendingBySubscription(ctx context.Context, subscriptionID string) ([]*dunning.Attempt, error) {
	return s.list(ctx, func(a *dunning.Attempt) bool {
		return a.SubscriptionID == subscriptionID && a.IsPending()
	})
}

func (s *InMemoryDunningStore) list(ctx context.Context, keep func(*dunning.Attempt) bool) ([]*dunning.Attempt, error) {
	attempts, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, a *dunning.Attempt, _ interface{}) bool {
		return keep(a)
	}, func(i, j *dunning.Attempt) bool {
		if i.InvoiceID != j.InvoiceID {
			return i.InvoiceID < j.InvoiceID
		}
		return i.AttemptNumber < j.AttemptNumber
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(attempts, func(a *dunning.Attempt, _ int) *dunning.Attempt { return copyAttempt(a) }), nil
}

func (s *InMemoryDunningStore) UpdateOutcome(ctx context.Context, attempt *dunning.Attempt) error {
	return s.InMemoryStore.Mutate(ctx, attemptKey(attempt.InvoiceID, attempt.AttemptNumber), func(current *dunning.Attempt, exists bool) (*dunning.Attempt, error) {
		if !exists || !current.IsPending() {
			return nil, ierr.NewError("dunning attempt is missing or already resolved").
				WithHint("Dunning attempt cannot be updated").
				WithReportableDetails(map[string]any{
					"invoice_id":     attempt.InvoiceID,
					"attempt_number": attempt.AttemptNumber,
				}).
				Mark(ierr.ErrInvalidTransition)
		}
		next := copyAttempt(current)
		next.Outcome = attempt.Outcome
		next.UpdatedAt = attempt.UpdatedAt
		next.UpdatedBy = attempt.UpdatedBy
		return next, nil
	})
}
