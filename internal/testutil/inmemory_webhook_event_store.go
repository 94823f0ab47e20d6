package testutil

import (
	"context"

	"github.com/vibefunder/billing/internal/domain/webhookevent"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// InMemoryWebhookEventStore implements webhookevent.Repository
type InMemoryWebhookEventStore struct {
	*InMemoryStore[*webhookevent.Record]
}

var _ webhookevent.Repository = (*InMemoryWebhookEventStore)(nil)

func NewInMemoryWebhookEventStore() *InMemoryWebhookEventStore {
	return &InMemoryWebhookEventStore{
		InMemoryStore: NewInMemoryStore[*webhookevent.Record](),
	}
}

func copyRecord(rec *webhookevent.Record) *webhookevent.Record {
	c := *rec
	if rec.ProcessedAt != nil {
		t := *rec.ProcessedAt
		c.ProcessedAt = &t
	}
	if rec.ErrorMessage != nil {
		msg := *rec.ErrorMessage
		c.ErrorMessage = &msg
	}
	c.Payload = append([]byte(nil), rec.Payload...)
	return &c
}

func (s *InMemoryWebhookEventStore) InsertOrLock(ctx context.Context, rec *webhookevent.Record) (*webhookevent.Record, bool, error) {
	var (
		stored  *webhookevent.Record
		created bool
	)
	err := s.InMemoryStore.Mutate(ctx, rec.ID, func(current *webhookevent.Record, exists bool) (*webhookevent.Record, error) {
		if exists {
			stored = copyRecord(current)
			return current, nil
		}
		created = true
		stored = copyRecord(rec)
		return copyRecord(rec), nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *InMemoryWebhookEventStore) Get(ctx context.Context, id string) (*webhookevent.Record, error) {
	rec, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyRecord(rec), nil
}

func (s *InMemoryWebhookEventStore) Update(ctx context.Context, rec *webhookevent.Record) error {
	return s.InMemoryStore.Mutate(ctx, rec.ID, func(current *webhookevent.Record, exists bool) (*webhookevent.Record, error) {
		if !exists || current.IsTerminal() {
			return nil, ierr.NewError("webhook event is missing or already terminal").
				WithHint("Webhook event cannot be updated").
				WithReportableDetails(map[string]any{"event_id": rec.ID}).
				Mark(ierr.ErrInvalidTransition)
		}
		next := copyRecord(current)
		next.Status = rec.Status
		next.ProcessedAt = rec.ProcessedAt
		next.ErrorMessage = rec.ErrorMessage
		next.Attempts = rec.Attempts
		return next, nil
	})
}

func (s *InMemoryWebhookEventStore) MarkFailed(ctx context.Context, rec *webhookevent.Record) error {
	return s.InMemoryStore.Mutate(ctx, rec.ID, func(current *webhookevent.Record, exists bool) (*webhookevent.Record, error) {
		if !exists {
			return copyRecord(rec), nil
		}
		if current.IsTerminal() {
			return current, nil
		}
		next := copyRecord(current)
		next.Status = rec.Status
		next.ProcessedAt = rec.ProcessedAt
		next.ErrorMessage = rec.ErrorMessage
		next.Attempts = current.Attempts + 1
		return next, nil
	})
}
