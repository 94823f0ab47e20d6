package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/domain/webhookevent"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/notification"
	"github.com/vibefunder/billing/internal/types"
)

const (
	unsupportedEventReason    = "unsupported event type"
	noSubscriptionEventReason = "event does not reference a subscription"
)

// WebhookProcessorService applies verified processor events to billing state
// exactly once per event id.
type WebhookProcessorService interface {
	// ProcessEvent returns an error only when the processor should redeliver.
	ProcessEvent(ctx context.Context, evt *webhookevent.Event) (*dto.WebhookResponse, error)
}

type webhookProcessorService struct {
	ServiceParams
	dunning       DunningService
	notifications NotificationService
	locks         *keyedMutex
}

func NewWebhookProcessorService(params ServiceParams, dunning DunningService, notifications NotificationService) WebhookProcessorService {
	return &webhookProcessorService{
		ServiceParams: params,
		dunning:       dunning,
		notifications: notifications,
		locks:         newKeyedMutex(),
	}
}

// eventOutcome is what dispatching one event decided.
type eventOutcome struct {
	status        types.WebhookEventStatus
	notifications []*notification.Notification
	// restorePrice is set when dunning dropped a scheduled downgrade whose price
	// the processor already has.
	restorePrice *subscription.Subscription
}

func (s *webhookProcessorService) ProcessEvent(ctx context.Context, evt *webhookevent.Event) (*dto.WebhookResponse, error) {
	now := s.now()
	log := s.Logger.WithContext(ctx).With(
		"event_id", evt.ID,
		"event_type", evt.Type,
	)

	if s.Sentry != nil {
		span, spanCtx := s.Sentry.MonitorWebhookProcessing(ctx, evt.Type.String(), evt.CreatedAt, map[string]interface{}{
			"event_id": evt.ID,
		})
		if span != nil {
			ctx = spanCtx
			defer span.Finish()
		}
	}

	resp := &dto.WebhookResponse{
		EventID:   evt.ID,
		EventType: evt.Type,
	}

	if _, ok := evt.Payload.(webhookevent.Unknown); ok {
		return s.recordUnsupported(ctx, evt, resp, unsupportedEventReason, now)
	}
	// One-off invoices carry no subscription; redelivering them would never help.
	ref := evt.Payload.SubscriptionRef()
	if ref == "" {
		return s.recordUnsupported(ctx, evt, resp, noSubscriptionEventReason, now)
	}

	// Events for one subscription are applied one at a time. The row lock taken
	// below serializes across processes, the mutex inside this one.
	unlock := s.locks.Lock(ref)
	defer unlock()

	var (
		outcome *eventOutcome
		replay  bool
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		rec, _, err := s.WebhookEventRepo.InsertOrLock(ctx, webhookevent.NewRecord(evt, now))
		if err != nil {
			return err
		}
		if rec.IsTerminal() {
			replay = true
			outcome = &eventOutcome{status: rec.Status}
			return nil
		}

		outcome, err = s.dispatch(ctx, evt, now)
		if err != nil {
			return err
		}

		rec.Finish(outcome.status, now)
		rec.Attempts++
		return s.WebhookEventRepo.Update(ctx, rec)
	})
	if err != nil {
		return nil, s.recordFailure(ctx, evt, now, err)
	}

	resp.Status = outcome.status
	resp.Replay = replay
	if replay {
		log.Infow("webhook event already handled", "status", outcome.status)
		return resp, nil
	}

	log.Infow("processed webhook event", "status", outcome.status)
	if outcome.restorePrice != nil {
		s.restoreDroppedDowngrade(ctx, outcome.restorePrice)
	}
	resp.Warnings = s.notifications.Send(ctx, outcome.notifications...)
	return resp, nil
}

// restoreDroppedDowngrade runs after the commit. The event stays applied when the
// processor call fails; the error is reported for manual follow up.
func (s *webhookProcessorService) restoreDroppedDowngrade(ctx context.Context, sub *subscription.Subscription) {
	err := restoreProcessorPrice(ctx, s.ServiceParams, sub, "grace_period")
	if err == nil {
		s.Logger.WithContext(ctx).Infow("restored processor price after dropping scheduled downgrade",
			"subscription_id", sub.ID,
			"price_id", sub.PriceID,
		)
		return
	}

	s.Logger.WithContext(ctx).Errorw("failed to restore processor price after dropping scheduled downgrade",
		"subscription_id", sub.ID,
		"price_id", sub.PriceID,
		"error", err,
	)
	if s.Sentry != nil {
		s.Sentry.CaptureExceptionWithTags(ctx, err, map[string]string{
			"subscription_id": sub.ID,
		})
	}
}

func (s *webhookProcessorService) dispatch(ctx context.Context, evt *webhookevent.Event, now time.Time) (*eventOutcome, error) {
	sub, err := s.lockSubscription(ctx, evt.Payload.SubscriptionRef())
	if err != nil {
		return nil, err
	}

	switch payload := evt.Payload.(type) {
	case webhookevent.InvoicePaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, sub, payload.Invoice, now)
	case webhookevent.InvoicePaymentFailed:
		return s.handlePaymentFailed(ctx, sub, payload.Invoice, now)
	case webhookevent.SubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, sub, payload.Subscription, now)
	default:
		return nil, ierr.NewError("unhandled webhook payload").
			WithHint("Webhook event could not be processed").
			WithReportableDetails(map[string]any{"event_type": evt.Type}).
			Mark(ierr.ErrSystem)
	}
}

// lockSubscription loads the subscription an event targets and locks its row.
// An unknown subscription is an error so the processor redelivers; the event can
// race the commit of a subscription that is still being created.
func (s *webhookProcessorService) lockSubscription(ctx context.Context, processorSubscriptionID string) (*subscription.Subscription, error) {
	if processorSubscriptionID == "" {
		return nil, ierr.NewError("event does not reference a subscription").
			WithHint("Webhook event has no subscription").
			Mark(ierr.ErrValidation)
	}

	found, err := s.SubRepo.GetByProcessorID(ctx, processorSubscriptionID)
	if err != nil {
		return nil, err
	}
	return s.SubRepo.GetForUpdate(ctx, found.ID)
}

func (s *webhookProcessorService) handlePaymentSucceeded(ctx context.Context, sub *subscription.Subscription, obj webhookevent.InvoiceObject, now time.Time) (*eventOutcome, error) {
	inv, isNew, err := s.findOrBuildInvoice(ctx, sub, obj)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		return &eventOutcome{status: types.WebhookEventStatusIgnoredDuplicate}, nil
	}

	if obj.AmountPaid > inv.AmountDue {
		inv.AmountDue = obj.AmountPaid
	}
	inv.MarkPaid(now)
	if err := s.saveInvoice(ctx, inv, isNew, now); err != nil {
		return nil, err
	}

	if err := s.dunning.RecordSuccess(ctx, sub, inv); err != nil {
		return nil, err
	}

	switch {
	case sub.IsCanceled():
		// A late payment for a canceled subscription is recorded but changes nothing else.
		return &eventOutcome{status: types.WebhookEventStatusApplied}, nil
	case sub.Status == types.SubscriptionStatusPastDue:
		if err := sub.TransitionTo(types.SubscriptionStatusActive, now); err != nil {
			return nil, err
		}
	case sub.Status == types.SubscriptionStatusTrialing && sub.TrialEnd != nil && !now.Before(*sub.TrialEnd):
		if err := sub.TransitionTo(types.SubscriptionStatusActive, now); err != nil {
			return nil, err
		}
	}

	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	n := newSubscriptionNotification(ctx, types.NotificationRenewalSuccess, sub, now)
	n.InvoiceID = inv.ID
	n.AmountDue = inv.AmountDue
	n.Currency = inv.Currency
	return &eventOutcome{
		status:        types.WebhookEventStatusApplied,
		notifications: []*notification.Notification{n},
	}, nil
}

func (s *webhookProcessorService) handlePaymentFailed(ctx context.Context, sub *subscription.Subscription, obj webhookevent.InvoiceObject, now time.Time) (*eventOutcome, error) {
	inv, isNew, err := s.findOrBuildInvoice(ctx, sub, obj)
	if err != nil {
		return nil, err
	}
	// A failure reported after the invoice was paid is stale.
	if inv.IsPaid() {
		return &eventOutcome{status: types.WebhookEventStatusIgnoredDuplicate}, nil
	}

	maxAttempts := s.Config.Billing.MaxPaymentAttempts
	count, advanced := inv.RecordFailedAttempt(obj.AttemptCount, obj.NextPaymentAttempt, maxAttempts)
	if !advanced {
		return &eventOutcome{status: types.WebhookEventStatusIgnoredDuplicate}, nil
	}
	if err := s.saveInvoice(ctx, inv, isNew, now); err != nil {
		return nil, err
	}

	if sub.IsCanceled() {
		return &eventOutcome{status: types.WebhookEventStatusApplied}, nil
	}

	final := count >= maxAttempts
	if final && sub.Status != types.SubscriptionStatusPastDue {
		if subscription.CanTransition(sub.Status, types.SubscriptionStatusPastDue) {
			if err := sub.TransitionTo(types.SubscriptionStatusPastDue, now); err != nil {
				return nil, err
			}
		} else {
			// Paused subscriptions keep their status; collection resumes with them.
			s.Logger.WithContext(ctx).Warnw("final payment attempt failed for a subscription that cannot become past_due",
				"subscription_id", sub.ID,
				"status", sub.Status,
			)
			final = false
		}
	}

	dropsDowngrade := final && sub.ScheduledDowngradeTier != nil

	var n *notification.Notification
	if final {
		n, err = s.dunning.HandleFinalAttempt(ctx, sub, inv, count)
	} else {
		n, err = s.dunning.RecordFailure(ctx, sub, inv, count, obj.NextPaymentAttempt)
	}
	if err != nil {
		return nil, err
	}

	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	outcome := &eventOutcome{
		status:        types.WebhookEventStatusApplied,
		notifications: []*notification.Notification{n},
	}
	if dropsDowngrade {
		outcome.restorePrice = sub.Copy()
	}
	return outcome, nil
}

func (s *webhookProcessorService) handleSubscriptionDeleted(ctx context.Context, sub *subscription.Subscription, obj webhookevent.SubscriptionObject, now time.Time) (*eventOutcome, error) {
	if sub.IsCanceled() {
		return &eventOutcome{status: types.WebhookEventStatusIgnoredDuplicate}, nil
	}

	canceledAt := now
	if obj.CanceledAt != nil {
		canceledAt = *obj.CanceledAt
	}
	if err := sub.TransitionTo(types.SubscriptionStatusCanceled, canceledAt); err != nil {
		return nil, err
	}
	if err := s.dunning.ResolvePendingAsFailed(ctx, sub.ID); err != nil {
		return nil, err
	}

	sub.Touch(ctx, now)
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	return &eventOutcome{
		status: types.WebhookEventStatusApplied,
		notifications: []*notification.Notification{
			newSubscriptionNotification(ctx, types.NotificationBenefitsRevoked, sub, now),
		},
	}, nil
}

// findOrBuildInvoice returns the local invoice for a processor invoice. Renewal
// invoices are first seen through their events and are built here, unsaved.
func (s *webhookProcessorService) findOrBuildInvoice(ctx context.Context, sub *subscription.Subscription, obj webhookevent.InvoiceObject) (*invoice.Invoice, bool, error) {
	inv, err := s.InvoiceRepo.GetByProcessorID(ctx, obj.ID)
	if err == nil {
		if inv.SubscriptionID != sub.ID {
			return nil, false, ierr.NewError("invoice belongs to another subscription").
				WithHint("Webhook event does not match the invoice").
				WithReportableDetails(map[string]any{
					"invoice_id":      inv.ID,
					"subscription_id": sub.ID,
				}).
				Mark(ierr.ErrValidation)
		}
		return inv, false, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, false, err
	}

	currency := price.NormalizeCurrency(obj.Currency)
	if currency == "" {
		currency = sub.Currency
	}
	return &invoice.Invoice{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID:     sub.ID,
		ProcessorInvoiceID: lo.ToPtr(obj.ID),
		AmountDue:          obj.AmountDue,
		Currency:           currency,
		Status:             types.InvoiceStatusOpen,
		BillingReason:      types.InvoiceBillingReasonFromProcessor(obj.BillingReason),
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}, true, nil
}

func (s *webhookProcessorService) saveInvoice(ctx context.Context, inv *invoice.Invoice, isNew bool, now time.Time) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	if isNew {
		return s.InvoiceRepo.Create(ctx, inv)
	}
	inv.Touch(ctx, now)
	return s.InvoiceRepo.Update(ctx, inv)
}

// recordUnsupported stores an event billing does not act on as failed so it is
// visible, and acknowledges it so the processor stops redelivering.
func (s *webhookProcessorService) recordUnsupported(ctx context.Context, evt *webhookevent.Event, resp *dto.WebhookResponse, reason string, now time.Time) (*dto.WebhookResponse, error) {
	rec := webhookevent.NewRecord(evt, now)
	rec.Fail(reason, now)
	if err := s.WebhookEventRepo.MarkFailed(ctx, rec); err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Warnw("ignoring webhook event",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"reason", reason,
	)
	resp.Status = types.WebhookEventStatusFailed
	return resp, nil
}

// recordFailure writes the failed status outside the rolled back transaction and
// returns an error that carries nothing internal to the caller.
func (s *webhookProcessorService) recordFailure(ctx context.Context, evt *webhookevent.Event, now time.Time, cause error) error {
	log := s.Logger.WithContext(ctx)

	rec := webhookevent.NewRecord(evt, now)
	rec.Fail(cause.Error(), now)
	rec.Attempts = 1
	if err := s.WebhookEventRepo.MarkFailed(context.WithoutCancel(ctx), rec); err != nil {
		log.Errorw("failed to record webhook failure",
			"event_id", evt.ID,
			"error", err,
		)
	}

	log.Errorw("failed to process webhook event",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"error", cause,
	)
	if s.Sentry != nil {
		s.Sentry.CaptureExceptionWithTags(ctx, cause, map[string]string{
			"event_id":   evt.ID,
			"event_type": evt.Type.String(),
		})
	}

	return ierr.NewError("webhook event processing failed").
		WithHint("Webhook event could not be processed and will be retried").
		WithReportableDetails(map[string]any{"event_id": evt.ID}).
		Mark(ierr.ErrSystem)
}
