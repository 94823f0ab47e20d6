package postgres

import (
	"context"

	"github.com/vibefunder/billing/internal/domain/invoice"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/postgres"
)

const invoiceColumns = `
	id, subscription_id, processor_invoice_id, amount_due, amount_paid, currency,
	invoice_status, billing_reason, attempt_count, next_attempt_at, paid_at,
	created_at, updated_at, created_by, updated_by`

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `
		) VALUES (
			:id, :subscription_id, :processor_invoice_id, :amount_due, :amount_paid, :currency,
			:invoice_status, :billing_reason, :attempt_count, :next_attempt_at, :paid_at,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv); err != nil {
		return wrapWriteError(err, "create", "Invoice", map[string]any{
			"invoice_id":      inv.ID,
			"subscription_id": inv.SubscriptionID,
		})
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, id); err != nil {
		return nil, wrapGetError(err, "Invoice", map[string]any{"invoice_id": id})
	}
	return &inv, nil
}

// GetByProcessorID locks the row when called inside a transaction.
func (r *invoiceRepository) GetByProcessorID(ctx context.Context, processorInvoiceID string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE processor_invoice_id = $1`
	if postgres.InTx(ctx) {
		query += ` FOR UPDATE`
	}
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, processorInvoiceID); err != nil {
		return nil, wrapGetError(err, "Invoice", map[string]any{"processor_invoice_id": processorInvoiceID})
	}
	return &inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices SET
			amount_due = :amount_due,
			amount_paid = :amount_paid,
			invoice_status = :invoice_status,
			attempt_count = :attempt_count,
			next_attempt_at = :next_attempt_at,
			paid_at = :paid_at,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv)
	if err != nil {
		return wrapWriteError(err, "update", "Invoice", map[string]any{"invoice_id": inv.ID})
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			WithReportableDetails(map[string]any{"invoice_id": inv.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *invoiceRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	var invoices []*invoice.Invoice
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE subscription_id = $1 ORDER BY created_at, id`
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, subscriptionID); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list invoices").
			WithHint("Could not list invoices").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}
