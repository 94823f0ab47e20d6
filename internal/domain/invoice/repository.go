package invoice

import "context"

type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByProcessorID(ctx context.Context, processorInvoiceID string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Invoice, error)
}
