package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/postgres"
	"github.com/vibefunder/billing/internal/types"
)

const subscriptionColumns = `
	id, campaign_id, backer_id, tier, billing_cycle, subscription_status,
	price_id, unit_amount, currency, prior_price_id,
	current_period_start, current_period_end, cancel_at_period_end,
	canceled_at, paused_at, trial_end, started_at,
	discount_id, default_payment_method_id, scheduled_downgrade_tier, grace_period_end,
	processor_subscription_id, processor_customer_id, version, metadata,
	created_at, updated_at, created_by, updated_by`

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id, :campaign_id, :backer_id, :tier, :billing_cycle, :subscription_status,
			:price_id, :unit_amount, :currency, :prior_price_id,
			:current_period_start, :current_period_end, :cancel_at_period_end,
			:canceled_at, :paused_at, :trial_end, :started_at,
			:discount_id, :default_payment_method_id, :scheduled_downgrade_tier, :grace_period_end,
			:processor_subscription_id, :processor_customer_id, :version, :metadata,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	if sub.Version == 0 {
		sub.Version = 1
	}
	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub); err != nil {
		return wrapWriteError(err, "create", "Subscription", map[string]any{
			"subscription_id": sub.ID,
		})
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (r *subscriptionRepository) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *subscriptionRepository) GetByProcessorID(ctx context.Context, processorSubscriptionID string) (*subscription.Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE processor_subscription_id = $1`, processorSubscriptionID)
}

func (r *subscriptionRepository) get(ctx context.Context, query string, key string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, key); err != nil {
		return nil, wrapGetError(err, "Subscription", map[string]any{"subscription_id": key})
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			tier = :tier,
			billing_cycle = :billing_cycle,
			subscription_status = :subscription_status,
			price_id = :price_id,
			unit_amount = :unit_amount,
			currency = :currency,
			prior_price_id = :prior_price_id,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			cancel_at_period_end = :cancel_at_period_end,
			canceled_at = :canceled_at,
			paused_at = :paused_at,
			trial_end = :trial_end,
			discount_id = :discount_id,
			default_payment_method_id = :default_payment_method_id,
			scheduled_downgrade_tier = :scheduled_downgrade_tier,
			grace_period_end = :grace_period_end,
			processor_customer_id = :processor_customer_id,
			metadata = :metadata,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND version = :version`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub)
	if err != nil {
		return wrapWriteError(err, "update", "Subscription", map[string]any{
			"subscription_id": sub.ID,
		})
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		return ierr.NewError("subscription version is stale").
			WithHint("The subscription was modified concurrently, please retry").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"version":         sub.Version,
			}).
			Mark(ierr.ErrConcurrentModification)
	}

	sub.Version++
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *subscription.Filter) ([]*subscription.Subscription, error) {
	if filter == nil {
		filter = &subscription.Filter{}
	}

	where := &whereBuilder{}
	if filter.BackerID != "" {
		where.add("backer_id = $%d", filter.BackerID)
	}
	if filter.CampaignID != "" {
		where.add("campaign_id = $%d", filter.CampaignID)
	}
	if len(filter.Statuses) > 0 {
		where.add("subscription_status = ANY($%d)", pq.Array(lo.Map(filter.Statuses, func(s types.SubscriptionStatus, _ int) string {
			return string(s)
		})))
	}
	if filter.PeriodEndBefore != nil {
		where.add("current_period_end <= $%d", filter.PeriodEndBefore.UTC())
	}
	if filter.GraceEndBefore != nil {
		where.add("grace_period_end <= $%d", filter.GraceEndBefore.UTC())
	}
	if filter.AfterID != "" {
		where.add("id > $%d", filter.AfterID)
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions` + where.String() + ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	var subs []*subscription.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query, where.args...); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list subscriptions").
			WithHint("Could not list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListAll(ctx context.Context) ([]*subscription.Subscription, error) {
	start := time.Now()
	var subs []*subscription.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id`); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to read subscription snapshot").
			WithHint("Could not load subscriptions").
			Mark(ierr.ErrDatabase)
	}
	r.logger.Debugw("loaded subscription snapshot", "count", len(subs), "duration_ms", time.Since(start).Milliseconds())
	return subs, nil
}
