package service

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/idempotency"
	"github.com/vibefunder/billing/internal/types"
)

type rolloverOutcome int

const (
	rolloverSkipped rolloverOutcome = iota
	rolloverAdvanced
	rolloverCanceled
	rolloverDowngraded
	rolloverActivated
)

func (s *subscriptionService) RolloverPeriods(ctx context.Context) (*dto.RolloverResponse, error) {
	now := s.now()
	log := s.Logger.WithContext(ctx)

	log.Infow("starting period rollover", "current_time", now)

	var (
		mu     sync.Mutex
		result = &dto.RolloverResponse{}
	)

	filter := &subscription.Filter{
		Statuses: []types.SubscriptionStatus{
			types.SubscriptionStatusTrialing,
			types.SubscriptionStatusActive,
			types.SubscriptionStatusPastDue,
		},
		PeriodEndBefore: &now,
		Limit:           s.Config.Billing.SweepBatchSize,
	}

	for {
		batch, err := s.SubRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		log.Debugw("processing rollover batch", "batch_size", len(batch), "after_id", filter.AfterID)

		p := pool.New().WithMaxGoroutines(s.Config.Billing.SweepConcurrency)
		for _, sub := range batch {
			p.Go(func() {
				outcome, err := s.rolloverSubscription(ctx, sub, now)

				mu.Lock()
				defer mu.Unlock()
				result.Processed++
				if err != nil {
					result.Failed++
					log.Errorw("failed to roll over subscription period",
						"subscription_id", sub.ID,
						"error", err,
					)
					return
				}
				switch outcome {
				case rolloverCanceled:
					result.Canceled++
				case rolloverDowngraded:
					result.Downgraded++
				case rolloverActivated:
					result.Activated++
				case rolloverSkipped:
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

	log.Infow("period rollover finished",
		"processed", result.Processed,
		"canceled", result.Canceled,
		"downgraded", result.Downgraded,
		"activated", result.Activated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// rolloverSubscription handles one subscription whose period ended. The processor
// already knows about a pending cancel; the cancel call here reconciles it before
// the local transaction and is keyed on the ended period, so a rerun repeats it
// harmlessly.
func (s *subscriptionService) rolloverSubscription(ctx context.Context, candidate *subscription.Subscription, now time.Time) (rolloverOutcome, error) {
	periodKey := candidate.CurrentPeriodEnd.Unix()

	if candidate.CancelAtPeriodEnd && candidate.ProcessorSubscriptionID != "" {
		key := s.Idempotency.GenerateKey(idempotency.ScopeCancelSubscription, map[string]interface{}{
			"subscription_id": candidate.ID,
			"reason":          "period_end",
			"period_end":      periodKey,
		})
		if err := s.Gateway.CancelSubscription(ctx, candidate.ProcessorSubscriptionID, key); err != nil {
			return rolloverSkipped, err
		}
	}

	// The processor got the downgrade price when it was scheduled; only the local
	// tier switches here.
	var downgradePrice *price.Price
	if candidate.ScheduledDowngradeTier != nil && !candidate.CancelAtPeriodEnd {
		p, err := s.priceCatalog.Resolve(ctx, candidate.CampaignID, *candidate.ScheduledDowngradeTier, candidate.BillingCycle)
		if err != nil {
			return rolloverSkipped, err
		}
		downgradePrice = p
	}

	var (
		sub     *subscription.Subscription
		outcome rolloverOutcome
	)
	err := retryOnConflict(ctx, s.ServiceParams, candidate.ID, func(ctx context.Context) error {
		outcome = rolloverSkipped
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.SubRepo.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.IsCanceled() || sub.Status == types.SubscriptionStatusPaused || sub.CurrentPeriodEnd.After(now) {
				return nil
			}
			// A cancel flag that changed after the listing needs the processor call
			// above; the next run picks it up.
			if sub.CancelAtPeriodEnd != candidate.CancelAtPeriodEnd {
				return nil
			}

			switch {
			case sub.CancelAtPeriodEnd:
				if err := sub.TransitionTo(types.SubscriptionStatusCanceled, sub.CurrentPeriodEnd); err != nil {
					return err
				}
				if err := s.dunning.ResolvePendingAsFailed(ctx, sub.ID); err != nil {
					return err
				}
				outcome = rolloverCanceled
			default:
				if sub.ScheduledDowngradeTier != nil {
					if downgradePrice == nil || *sub.ScheduledDowngradeTier != downgradePrice.Tier {
						return nil
					}
					applyPrice(sub, downgradePrice)
					sub.ScheduledDowngradeTier = nil
					outcome = rolloverDowngraded
				}
				if sub.Status == types.SubscriptionStatusTrialing && (sub.TrialEnd == nil || !now.Before(*sub.TrialEnd)) {
					if err := sub.TransitionTo(types.SubscriptionStatusActive, now); err != nil {
						return err
					}
					if outcome == rolloverSkipped {
						outcome = rolloverActivated
					}
				}
				if err := sub.AdvancePeriod(now); err != nil {
					return err
				}
				if outcome == rolloverSkipped {
					outcome = rolloverAdvanced
				}
			}

			sub.Touch(ctx, now)
			return s.SubRepo.Update(ctx, sub)
		})
	})
	if err != nil {
		return rolloverSkipped, err
	}

	log := s.Logger.WithContext(ctx)
	switch outcome {
	case rolloverSkipped:
		log.Debugw("nothing to roll over", "subscription_id", candidate.ID)
	case rolloverCanceled:
		log.Infow("canceled subscription at period end", "subscription_id", sub.ID, "canceled_at", sub.CanceledAt)
		s.notifications.Send(ctx, newSubscriptionNotification(ctx, types.NotificationBenefitsRevoked, sub, now))
	default:
		log.Infow("rolled over subscription period",
			"subscription_id", sub.ID,
			"tier", sub.Tier,
			"status", sub.Status,
			"current_period_start", sub.CurrentPeriodStart,
			"current_period_end", sub.CurrentPeriodEnd,
		)
	}
	return outcome, nil
}
