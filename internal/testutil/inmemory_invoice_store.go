package testutil

import (
	"context"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/domain/invoice"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

var _ invoice.Repository = (*InMemoryInvoiceStore)(nil)

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	c := *inv
	if inv.ProcessorInvoiceID != nil {
		id := *inv.ProcessorInvoiceID
		c.ProcessorInvoiceID = &id
	}
	if inv.NextAttemptAt != nil {
		t := *inv.NextAttemptAt
		c.NextAttemptAt = &t
	}
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv.ProcessorInvoiceID != nil {
		if _, err := s.GetByProcessorID(ctx, *inv.ProcessorInvoiceID); err == nil {
			return ierr.NewError("processor invoice already recorded").
				WithHint("Invoice already exists").
				WithReportableDetails(map[string]any{
					"processor_invoice_id": *inv.ProcessorInvoiceID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) GetByProcessorID(ctx context.Context, processorInvoiceID string) (*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.ProcessorInvoiceID != nil && *inv.ProcessorInvoiceID == processorInvoiceID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			WithReportableDetails(map[string]any{
				"processor_invoice_id": processorInvoiceID,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(invoices[0]), nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	return s.InMemoryStore.Update(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.SubscriptionID == subscriptionID
	}, func(i, j *invoice.Invoice) bool {
		if !i.CreatedAt.Equal(j.CreatedAt) {
			return i.CreatedAt.Before(j.CreatedAt)
		}
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(invoices, func(inv *invoice.Invoice, _ int) *invoice.Invoice { return copyInvoice(inv) }), nil
}
