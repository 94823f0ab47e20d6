package webhookevent

import "context"

type Repository interface {
	// InsertOrLock creates the record if its id is new, then returns the stored row
	// locked until the surrounding transaction ends. The boolean is true when the
	// row was created by this call.
	InsertOrLock(ctx context.Context, rec *Record) (*Record, bool, error)
	Get(ctx context.Context, id string) (*Record, error)
	// Update overwrites status, processed_at, error_message and attempts.
	Update(ctx context.Context, rec *Record) error
	// MarkFailed upserts a failed record outside any caller transaction.
	MarkFailed(ctx context.Context, rec *Record) error
}
