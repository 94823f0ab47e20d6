package postgres

import (
	"context"

	"github.com/vibefunder/billing/internal/domain/webhookevent"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/postgres"
)

const webhookEventColumns = `
	id, event_type, event_status, received_at, processed_at, error_message, payload, attempts`

type webhookEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWebhookEventRepository(db *postgres.DB, logger *logger.Logger) webhookevent.Repository {
	return &webhookEventRepository{db: db, logger: logger}
}

func (r *webhookEventRepository) InsertOrLock(ctx context.Context, rec *webhookevent.Record) (*webhookevent.Record, bool, error) {
	q := r.db.GetQuerier(ctx)

	insert := `
		INSERT INTO webhook_events (` + webhookEventColumns + `
		) VALUES (
			:id, :event_type, :event_status, :received_at, :processed_at, :error_message, :payload, :attempts
		)
		ON CONFLICT (id) DO NOTHING`

	result, err := q.NamedExecContext(ctx, insert, rec)
	if err != nil {
		return nil, false, wrapWriteError(err, "record", "Webhook event", map[string]any{"event_id": rec.ID})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, ierr.WithError(err).
			WithMessage("failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}

	var stored webhookevent.Record
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1 FOR UPDATE`
	if err := q.GetContext(ctx, &stored, query, rec.ID); err != nil {
		return nil, false, wrapGetError(err, "Webhook event", map[string]any{"event_id": rec.ID})
	}
	return &stored, affected == 1, nil
}

func (r *webhookEventRepository) Get(ctx context.Context, id string) (*webhookevent.Record, error) {
	var rec webhookevent.Record
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &rec, query, id); err != nil {
		return nil, wrapGetError(err, "Webhook event", map[string]any{"event_id": id})
	}
	return &rec, nil
}

func (r *webhookEventRepository) Update(ctx context.Context, rec *webhookevent.Record) error {
	query := `
		UPDATE webhook_events SET
			event_status = :event_status,
			processed_at = :processed_at,
			error_message = :error_message,
			attempts = :attempts
		WHERE id = :id AND event_status NOT IN ('applied', 'ignored_duplicate')`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, rec)
	if err != nil {
		return wrapWriteError(err, "update", "Webhook event", map[string]any{"event_id": rec.ID})
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("webhook event is missing or already terminal").
			WithHint("Webhook event cannot be updated").
			WithReportableDetails(map[string]any{"event_id": rec.ID}).
			Mark(ierr.ErrInvalidTransition)
	}
	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, rec *webhookevent.Record) error {
	query := `
		INSERT INTO webhook_events (` + webhookEventColumns + `
		) VALUES (
			:id, :event_type, :event_status, :received_at, :processed_at, :error_message, :payload, :attempts
		)
		ON CONFLICT (id) DO UPDATE SET
			event_status = EXCLUDED.event_status,
			processed_at = EXCLUDED.processed_at,
			error_message = EXCLUDED.error_message,
			attempts = webhook_events.attempts + 1
		WHERE webhook_events.event_status NOT IN ('applied', 'ignored_duplicate')`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, rec); err != nil {
		return wrapWriteError(err, "record failure of", "Webhook event", map[string]any{"event_id": rec.ID})
	}
	return nil
}
