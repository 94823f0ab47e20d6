package service

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/dunning"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/idempotency"
	"github.com/vibefunder/billing/internal/notification"
	"github.com/vibefunder/billing/internal/types"
)

// DunningService tracks failed payment recovery for subscriptions.
//
// The Record* and HandleFinalAttempt methods run inside the caller's transaction.
// They mutate the subscription passed in but leave persisting it to the caller,
// and they return the notification to send once the caller has committed.
type DunningService interface {
	// RecordFailure writes the failed attempt and the pending next attempt.
	RecordFailure(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, attempt int, nextAttemptAt *time.Time) (*notification.Notification, error)
	// HandleFinalAttempt records the last allowed attempt and attaches the grace period.
	HandleFinalAttempt(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, attempt int) (*notification.Notification, error)
	// RecordSuccess resolves pending attempts as succeeded and clears the grace period.
	RecordSuccess(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) error
	// ResolvePendingAsFailed closes every pending attempt of a subscription that is going away.
	ResolvePendingAsFailed(ctx context.Context, subscriptionID string) error
	// ListAttempts returns the subscription's attempts oldest first with its grace state.
	ListAttempts(ctx context.Context, subscriptionID string) (*dto.DunningAttemptsResponse, error)

	// ProcessGracePeriodExpiry cancels every past_due subscription whose grace period is over.
	ProcessGracePeriodExpiry(ctx context.Context) (*dto.GracePeriodSweepResponse, error)
}

type dunningService struct {
	ServiceParams
	notifications NotificationService
}

func NewDunningService(params ServiceParams, notifications NotificationService) DunningService {
	return &dunningService{
		ServiceParams: params,
		notifications: notifications,
	}
}

func (s *dunningService) RecordFailure(
	ctx context.Context,
	sub *subscription.Subscription,
	inv *invoice.Invoice,
	attempt int,
	nextAttemptAt *time.Time,
) (*notification.Notification, error) {
	now := s.now()

	if err := s.recordOutcome(ctx, sub, inv, attempt, now, types.DunningOutcomeFailed); err != nil {
		return nil, err
	}

	if nextAttemptAt != nil {
		next := dunning.NewAttempt(ctx, sub.ID, inv.ID, attempt+1, nextAttemptAt.UTC(), types.DunningOutcomePending)
		if err := s.DunningAttemptRepo.Create(ctx, next); err != nil && !ierr.IsAlreadyExists(err) {
			return nil, err
		}
	}

	s.Logger.WithContext(ctx).Infow("recorded failed payment attempt",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"attempt", attempt,
		"max_attempts", s.Config.Billing.MaxPaymentAttempts,
		"next_attempt_at", nextAttemptAt,
	)

	n := newSubscriptionNotification(ctx, types.NotificationPaymentFailure, sub, now)
	n.InvoiceID = inv.ID
	n.AmountDue = inv.AmountDue
	n.Currency = inv.Currency
	n.NextRetryAt = nextAttemptAt
	return n, nil
}

func (s *dunningService) HandleFinalAttempt(
	ctx context.Context,
	sub *subscription.Subscription,
	inv *invoice.Invoice,
	attempt int,
) (*notification.Notification, error) {
	now := s.now()

	if err := s.recordOutcome(ctx, sub, inv, attempt, now, types.DunningOutcomeFinal); err != nil {
		return nil, err
	}
	// Nothing the processor scheduled earlier is going to run any more.
	if err := s.resolvePending(ctx, sub.ID, types.DunningOutcomeFailed); err != nil {
		return nil, err
	}

	deadline := now.Add(s.Config.Billing.GracePeriod())
	sub.AttachGracePeriod(deadline)

	s.Logger.WithContext(ctx).Infow("final payment attempt failed, grace period attached",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"attempt", attempt,
		"grace_period_end", deadline,
	)

	n := newSubscriptionNotification(ctx, types.NotificationFinalWarning, sub, now)
	n.InvoiceID = inv.ID
	n.AmountDue = inv.AmountDue
	n.Currency = inv.Currency
	n.GraceDeadline = &deadline
	return n, nil
}

func (s *dunningService) RecordSuccess(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) error {
	if err := s.resolvePending(ctx, sub.ID, types.DunningOutcomeSucceeded); err != nil {
		return err
	}
	sub.ClearGracePeriod()
	return nil
}

func (s *dunningService) ResolvePendingAsFailed(ctx context.Context, subscriptionID string) error {
	return s.resolvePending(ctx, subscriptionID, types.DunningOutcomeFailed)
}

func (s *dunningService) ListAttempts(ctx context.Context, subscriptionID string) (*dto.DunningAttemptsResponse, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.DunningAttemptRepo.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []*dunning.Attempt{}
	}

	return &dto.DunningAttemptsResponse{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		InGracePeriod:  sub.InGracePeriod(s.now()),
		GracePeriodEnd: sub.GracePeriodEnd,
		Attempts:       attempts,
	}, nil
}

// recordOutcome writes the row for (invoice, attempt). A pending row scheduled by an
// earlier failure is resolved in place; a row that already has an outcome is kept.
func (s *dunningService) recordOutcome(
	ctx context.Context,
	sub *subscription.Subscription,
	inv *invoice.Invoice,
	attempt int,
	at time.Time,
	outcome types.DunningOutcome,
) error {
	existing, err := s.DunningAttemptRepo.Get(ctx, inv.ID, attempt)
	switch {
	case err == nil:
		if !existing.IsPending() {
			return nil
		}
		existing.Outcome = outcome
		existing.Touch(ctx, at)
		return s.DunningAttemptRepo.UpdateOutcome(ctx, existing)
	case ierr.IsNotFound(err):
		row := dunning.NewAttempt(ctx, sub.ID, inv.ID, attempt, at, outcome)
		if err := s.DunningAttemptRepo.Create(ctx, row); err != nil && !ierr.IsAlreadyExists(err) {
			return err
		}
		return nil
	default:
		return err
	}
}

func (s *dunningService) resolvePending(ctx context.Context, subscriptionID string, outcome types.DunningOutcome) error {
	pending, err := s.DunningAttemptRepo.ListPendingBySubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	now := s.now()
	for _, a := range pending {
		a.Outcome = outcome
		a.Touch(ctx, now)
		if err := s.DunningAttemptRepo.UpdateOutcome(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *dunningService) ProcessGracePeriodExpiry(ctx context.Context) (*dto.GracePeriodSweepResponse, error) {
	now := s.now()
	log := s.Logger.WithContext(ctx)

	var (
		mu     sync.Mutex
		result = &dto.GracePeriodSweepResponse{}
	)

	filter := &subscription.Filter{
		Statuses:       []types.SubscriptionStatus{types.SubscriptionStatusPastDue},
		GraceEndBefore: &now,
		Limit:          s.Config.Billing.SweepBatchSize,
	}

	for {
		batch, err := s.SubRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		p := pool.New().WithMaxGoroutines(s.Config.Billing.SweepConcurrency)
		for _, sub := range batch {
			p.Go(func() {
				canceled, err := s.expireGracePeriod(ctx, sub, now)

				mu.Lock()
				defer mu.Unlock()
				result.Processed++
				switch {
				case err != nil:
					result.Failed++
					log.Errorw("failed to cancel subscription after grace period",
						"subscription_id", sub.ID,
						"error", err,
					)
				case canceled:
					result.Canceled++
				default:
					result.Skipped++
				}
			})
		}
		p.Wait()

		if len(batch) < filter.Limit {
			break
		}
		filter.AfterID = batch[len(batch)-1].ID
	}

	log.Infow("grace period sweep finished",
		"processed", result.Processed,
		"canceled", result.Canceled,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// expireGracePeriod cancels one subscription. The processor is told first so a
// failure there leaves the local row untouched for the next sweep.
func (s *dunningService) expireGracePeriod(ctx context.Context, candidate *subscription.Subscription, now time.Time) (bool, error) {
	// The listing can be stale; a recovered subscription must never reach the
	// processor cancel.
	fresh, err := s.SubRepo.Get(ctx, candidate.ID)
	if err != nil {
		return false, err
	}
	if fresh.Status != types.SubscriptionStatusPastDue || !fresh.GraceExpired(now) {
		s.Logger.WithContext(ctx).Debugw("subscription left grace period before expiry",
			"subscription_id", fresh.ID,
			"status", fresh.Status,
		)
		return false, nil
	}

	if candidate.ProcessorSubscriptionID != "" {
		key := s.Idempotency.GenerateKey(idempotency.ScopeCancelSubscription, map[string]interface{}{
			"subscription_id": candidate.ID,
			"reason":          "grace_period_expired",
		})
		if err := s.Gateway.CancelSubscription(ctx, candidate.ProcessorSubscriptionID, key); err != nil {
			return false, err
		}
	}

	var sub *subscription.Subscription
	canceled := false
	err = retryOnConflict(ctx, s.ServiceParams, candidate.ID, func(ctx context.Context) error {
		canceled = false
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.SubRepo.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// A payment may have landed between the listing and the lock.
			if sub.Status != types.SubscriptionStatusPastDue || !sub.GraceExpired(now) {
				return nil
			}

			if err := sub.TransitionTo(types.SubscriptionStatusCanceled, now); err != nil {
				return err
			}
			if err := s.resolvePending(ctx, sub.ID, types.DunningOutcomeFailed); err != nil {
				return err
			}
			sub.Touch(ctx, now)
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			canceled = true
			return nil
		})
	})
	if err != nil || !canceled {
		return false, err
	}

	s.Logger.WithContext(ctx).Infow("canceled subscription after grace period",
		"subscription_id", sub.ID,
		"backer_id", sub.BackerID,
		"campaign_id", sub.CampaignID,
	)

	s.notifications.Send(ctx,
		newSubscriptionNotification(ctx, types.NotificationCancellationConfirmed, sub, now),
		newSubscriptionNotification(ctx, types.NotificationBenefitsRevoked, sub, now),
	)
	return true, nil
}
