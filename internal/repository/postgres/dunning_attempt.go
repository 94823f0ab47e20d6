package postgres

import (
	"context"

	"github.com/vibefunder/billing/internal/domain/dunning"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/postgres"
)

const dunningAttemptColumns = `
	id, subscription_id, invoice_id, attempt_number, scheduled_at, outcome,
	created_at, updated_at, created_by, updated_by`

type dunningAttemptRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDunningAttemptRepository(db *postgres.DB, logger *logger.Logger) dunning.Repository {
	return &dunningAttemptRepository{db: db, logger: logger}
}

func (r *dunningAttemptRepository) Create(ctx context.Context, attempt *dunning.Attempt) error {
	query := `
		INSERT INTO dunning_attempts (` + dunningAttemptColumns + `
		) VALUES (
			:id, :subscription_id, :invoice_id, :attempt_number, :scheduled_at, :outcome,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, attempt); err != nil {
		return wrapWriteError(err, "create", "Dunning attempt", map[string]any{
			"invoice_id":     attempt.InvoiceID,
			"attempt_number": attempt.AttemptNumber,
		})
	}
	return nil
}

func (r *dunningAttemptRepository) Get(ctx context.Context, invoiceID string, attemptNumber int) (*dunning.Attempt, error) {
	var attempt dunning.Attempt
	query := `SELECT ` + dunningAttemptColumns + ` FROM dunning_attempts WHERE invoice_id = $1 AND attempt_number = $2`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &attempt, query, invoiceID, attemptNumber); err != nil {
		return nil, wrapGetError(err, "Dunning attempt", map[string]any{
			"invoice_id":     invoiceID,
			"attempt_number": attemptNumber,
		})
	}
	return &attempt, nil
}

func (r *dunningAttemptRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*dunning.Attempt, error) {
	return r.list(ctx, `SELECT `+dunningAttemptColumns+` FROM dunning_attempts
		WHERE subscription_id = $1 ORDER BY invoice_id, attempt_number`, subscriptionID)
}

func (r *dunningAttemptRepository) ListPendingBySubscription(ctx context.Context, subscriptionID string) ([]*dunning.Attempt, error) {
	return r.list(ctx, `SELECT `+dunningAttemptColumns+` FROM dunning_attempts
		WHERE subscription_id = $1 AND outcome = 'pending' ORDER BY invoice_id, attempt_number`, subscriptionID)
}

func (r *dunningAttemptRepository) list(ctx context.Context, query string, subscriptionID string) ([]*dunning.Attempt, error) {
	var attempts []*dunning.Attempt
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &attempts, query, subscriptionID); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list dunning attempts").
			WithHint("Could not list dunning attempts").
			Mark(ierr.ErrDatabase)
	}
	return attempts, nil
}

func (r *dunningAttemptRepository) UpdateOutcome(ctx context.Context, attempt *dunning.Attempt) error {
	query := `
		UPDATE dunning_attempts SET
			outcome = :outcome,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND outcome = 'pending'`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, attempt)
	if err != nil {
		return wrapWriteError(err, "update", "Dunning attempt", map[string]any{"attempt_id": attempt.ID})
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("dunning attempt is not pending").
			WithHint("Dunning attempt outcome is already final").
			WithReportableDetails(map[string]any{"attempt_id": attempt.ID}).
			Mark(ierr.ErrInvalidTransition)
	}
	return nil
}
