package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/idempotency"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/types"
)

// SubscriptionService owns the subscription lifecycle and is the only writer of
// subscription status outside webhook processing and dunning.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ListBackerSubscriptions(ctx context.Context, backerID string) (*dto.ListBackerSubscriptionsResponse, error)

	UpgradeSubscription(ctx context.Context, id string, req dto.ChangeTierRequest) (*dto.ChangeTierResponse, error)
	DowngradeSubscription(ctx context.Context, id string, req dto.ChangeTierRequest) (*dto.ChangeTierResponse, error)
	MigrateSubscription(ctx context.Context, id string, req dto.MigrateSubscriptionRequest) (*dto.SubscriptionResponse, error)

	CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.CancelSubscriptionResponse, error)
	ReactivateSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	PauseSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	UpdatePaymentMethod(ctx context.Context, id string, req dto.UpdatePaymentMethodRequest) (*dto.SubscriptionResponse, error)

	// RolloverPeriods moves every subscription whose period ended into its next period,
	// applying the cancellation or downgrade scheduled for the period end.
	RolloverPeriods(ctx context.Context) (*dto.RolloverResponse, error)
}

type subscriptionService struct {
	ServiceParams
	priceCatalog  PriceCatalogService
	dunning       DunningService
	notifications NotificationService
}

func NewSubscriptionService(
	params ServiceParams,
	priceCatalog PriceCatalogService,
	dunning DunningService,
	notifications NotificationService,
) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		priceCatalog:  priceCatalog,
		dunning:       dunning,
		notifications: notifications,
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	log := s.Logger.WithContext(ctx)

	p, err := s.priceCatalog.Resolve(ctx, req.CampaignID, req.Tier, req.BillingCycle)
	if err != nil {
		return nil, err
	}

	// The discount is checked before anything is written anywhere.
	var promotionCodeID string
	if req.DiscountCode != "" {
		promotionCodeID, err = s.Gateway.ResolveDiscount(ctx, req.DiscountCode)
		if err != nil {
			return nil, err
		}
	}

	sub := &subscription.Subscription{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		CampaignID: req.CampaignID,
		BackerID:   req.BackerID,
		Status:     subscription.InitialStatus(req.TrialDays),
		StartedAt:  now,
		Metadata:   types.Metadata{},
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
	applyPrice(sub, p)

	periodStart := now
	if req.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, req.TrialDays)
		sub.TrialEnd = &trialEnd
		periodStart = trialEnd
	}
	periodEnd, err := types.NextBillingDate(periodStart, req.BillingCycle)
	if err != nil {
		return nil, err
	}
	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = periodEnd

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	customerID, err := s.Gateway.EnsureCustomer(ctx, &interfaces.EnsureCustomerRequest{
		BackerID: req.BackerID,
		IdempotencyKey: s.Idempotency.GenerateKey(idempotency.ScopeCustomer, map[string]interface{}{
			"backer_id": req.BackerID,
		}),
	})
	if err != nil {
		return nil, err
	}

	processorSub, err := s.Gateway.CreateSubscription(ctx, &interfaces.CreateSubscriptionRequest{
		CustomerID:       customerID,
		ProcessorPriceID: p.ProcessorPriceID,
		PromotionCodeID:  promotionCodeID,
		TrialEnd:         sub.TrialEnd,
		IdempotencyKey: s.Idempotency.GenerateKey(idempotency.ScopeCreateSubscription, map[string]interface{}{
			"backer_id":     req.BackerID,
			"campaign_id":   req.CampaignID,
			"tier":          req.Tier,
			"billing_cycle": req.BillingCycle,
			"requested_at":  now.UnixNano(),
		}),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"backer_id":       sub.BackerID,
			"campaign_id":     sub.CampaignID,
			"tier":            sub.Tier.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	sub.ProcessorSubscriptionID = processorSub.ID
	sub.ProcessorCustomerID = customerID
	if promotionCodeID != "" {
		sub.DiscountID = lo.ToPtr(promotionCodeID)
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}
		if processorSub.LatestInvoice == nil || processorSub.LatestInvoice.ID == "" {
			return nil
		}
		return s.InvoiceRepo.Create(ctx, invoiceFromProcessor(ctx, sub, processorSub.LatestInvoice, now))
	})
	if err != nil {
		// Do not leave a processor subscription nobody knows about.
		s.cancelOrphan(ctx, sub)
		return nil, err
	}

	log.Infow("created subscription",
		"subscription_id", sub.ID,
		"backer_id", sub.BackerID,
		"campaign_id", sub.CampaignID,
		"tier", sub.Tier,
		"billing_cycle", sub.BillingCycle,
		"status", sub.Status,
		"current_period_start", sub.CurrentPeriodStart,
		"current_period_end", sub.CurrentPeriodEnd,
	)

	return &dto.CreateSubscriptionResponse{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
	}, nil
}

func (s *subscriptionService) cancelOrphan(ctx context.Context, sub *subscription.Subscription) {
	key := s.Idempotency.GenerateKey(idempotency.ScopeCancelSubscription, map[string]interface{}{
		"subscription_id": sub.ID,
		"reason":          "create_failed",
	})
	if err := s.Gateway.CancelSubscription(ctx, sub.ProcessorSubscriptionID, key); err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to cancel processor subscription after local create failed",
			"subscription_id", sub.ID,
			"processor_subscription_id", sub.ProcessorSubscriptionID,
			"error", err,
		)
		if s.Sentry != nil {
			s.Sentry.CaptureException(err)
		}
	}
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ListBackerSubscriptions(ctx context.Context, backerID string) (*dto.ListBackerSubscriptionsResponse, error) {
	if backerID == "" {
		return nil, ierr.NewError("backer_id is required").
			WithHint("Backer is required").
			Mark(ierr.ErrValidation)
	}

	subs, err := s.SubRepo.List(ctx, &subscription.Filter{BackerID: backerID})
	if err != nil {
		return nil, err
	}

	return &dto.ListBackerSubscriptionsResponse{
		BackerID: backerID,
		Subscriptions: lo.Map(subs, func(sub *subscription.Subscription, _ int) *dto.SubscriptionResponse {
			return &dto.SubscriptionResponse{Subscription: sub}
		}),
		TotalMonthlyAmount: monthlyRecurringTotals(subs),
	}, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.CancelSubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Mode == types.ChangeModeAtPeriodEnd {
		return s.cancelAtPeriodEnd(ctx, id)
	}
	return s.cancelImmediately(ctx, id)
}

func (s *subscriptionService) cancelAtPeriodEnd(ctx context.Context, id string) (*dto.CancelSubscriptionResponse, error) {
	now := s.now()

	var (
		sub     *subscription.Subscription
		changed bool
	)
	err := retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		var err error
		changed = false
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := sub.RequireNotCanceled(); err != nil {
			return err
		}
		if sub.CancelAtPeriodEnd {
			return nil
		}
		// The processor must stop the renewal before the period ends, not at the sweep.
		if err := s.pushCancelAtPeriodEnd(ctx, sub, true); err != nil {
			return err
		}

		sub.CancelAtPeriodEnd = true
		sub.Touch(ctx, now)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.CancelSubscriptionResponse{
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		CancelAtPeriodEnd: true,
	}
	if !changed {
		return resp, nil
	}

	s.Logger.WithContext(ctx).Infow("subscription will cancel at period end",
		"subscription_id", sub.ID,
		"current_period_end", sub.CurrentPeriodEnd,
	)
	resp.Warnings = s.notifications.Send(ctx, newSubscriptionNotification(ctx, types.NotificationCancellationConfirmed, sub, now))
	return resp, nil
}

func (s *subscriptionService) cancelImmediately(ctx context.Context, id string) (*dto.CancelSubscriptionResponse, error) {
	now := s.now()

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sub.RequireNotCanceled(); err != nil {
		return nil, err
	}

	key := s.Idempotency.GenerateKey(idempotency.ScopeCancelSubscription, map[string]interface{}{
		"subscription_id": sub.ID,
		"reason":          "requested",
	})
	if err := s.Gateway.CancelSubscription(ctx, sub.ProcessorSubscriptionID, key); err != nil {
		return nil, err
	}

	err = retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.SubRepo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// The processor's deletion event may have won the race.
			if sub.IsCanceled() {
				return nil
			}
			if err := sub.TransitionTo(types.SubscriptionStatusCanceled, now); err != nil {
				return err
			}
			if err := s.dunning.ResolvePendingAsFailed(ctx, sub.ID); err != nil {
				return err
			}
			sub.Touch(ctx, now)
			return s.SubRepo.Update(ctx, sub)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("canceled subscription",
		"subscription_id", sub.ID,
		"backer_id", sub.BackerID,
		"campaign_id", sub.CampaignID,
	)

	return &dto.CancelSubscriptionResponse{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		CanceledAt:     sub.CanceledAt,
		Warnings: s.notifications.Send(ctx,
			newSubscriptionNotification(ctx, types.NotificationCancellationConfirmed, sub, now),
			newSubscriptionNotification(ctx, types.NotificationBenefitsRevoked, sub, now),
		),
	}, nil
}

func (s *subscriptionService) ReactivateSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	now := s.now()

	var sub *subscription.Subscription
	err := retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != types.SubscriptionStatusActive || !sub.CancelAtPeriodEnd {
			return ierr.NewError("subscription is not scheduled for cancellation").
				WithHint("Only an active subscription scheduled to cancel at period end can be reactivated").
				WithReportableDetails(map[string]any{
					"subscription_id":      sub.ID,
					"status":               sub.Status,
					"cancel_at_period_end": sub.CancelAtPeriodEnd,
				}).
				Mark(ierr.ErrInvalidTransition)
		}

		if err := s.pushCancelAtPeriodEnd(ctx, sub, false); err != nil {
			return err
		}

		sub.CancelAtPeriodEnd = false
		sub.Touch(ctx, now)
		return s.SubRepo.Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("reactivated subscription", "subscription_id", sub.ID)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

// pushCancelAtPeriodEnd mirrors the flag on the processor. The key carries the row
// version so cancel, reactivate and cancel again in one period are three calls.
func (s *subscriptionService) pushCancelAtPeriodEnd(ctx context.Context, sub *subscription.Subscription, cancel bool) error {
	if sub.ProcessorSubscriptionID == "" {
		return nil
	}
	key := s.Idempotency.GenerateKey(idempotency.ScopeCancelAtPeriodEnd, map[string]interface{}{
		"subscription_id": sub.ID,
		"cancel":          cancel,
		"version":         sub.Version,
	})
	return s.Gateway.SetCancelAtPeriodEnd(ctx, sub.ProcessorSubscriptionID, cancel, key)
}

func (s *subscriptionService) PauseSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	now := s.now()

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sub.Copy().TransitionTo(types.SubscriptionStatusPaused, now); err != nil {
		return nil, err
	}

	key := s.Idempotency.GenerateKey(idempotency.ScopePauseCollection, map[string]interface{}{
		"subscription_id": sub.ID,
		"version":         sub.Version,
	})
	if err := s.Gateway.PauseCollection(ctx, sub.ProcessorSubscriptionID, key); err != nil {
		return nil, err
	}

	err = retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.SubRepo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if sub.Status == types.SubscriptionStatusPaused {
				return nil
			}
			if err := sub.TransitionTo(types.SubscriptionStatusPaused, now); err != nil {
				return err
			}
			sub.Touch(ctx, now)
			return s.SubRepo.Update(ctx, sub)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("paused subscription", "subscription_id", sub.ID)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	now := s.now()

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != types.SubscriptionStatusPaused {
		return nil, ierr.NewError("subscription is not paused").
			WithHint("Only a paused subscription can be resumed").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"status":          sub.Status,
			}).
			Mark(ierr.ErrInvalidTransition)
	}

	key := s.Idempotency.GenerateKey(idempotency.ScopeResumeCollection, map[string]interface{}{
		"subscription_id": sub.ID,
		"version":         sub.Version,
	})
	if err := s.Gateway.ResumeCollection(ctx, sub.ProcessorSubscriptionID, key); err != nil {
		return nil, err
	}

	err = retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.SubRepo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if sub.Status != types.SubscriptionStatusPaused {
				return nil
			}
			if err := sub.TransitionTo(types.SubscriptionStatusActive, now); err != nil {
				return err
			}
			// Periods that ended while paused are skipped, not billed.
			if err := sub.AdvancePeriod(now); err != nil {
				return err
			}
			sub.Touch(ctx, now)
			return s.SubRepo.Update(ctx, sub)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("resumed subscription",
		"subscription_id", sub.ID,
		"current_period_start", sub.CurrentPeriodStart,
		"current_period_end", sub.CurrentPeriodEnd,
	)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) UpdatePaymentMethod(ctx context.Context, id string, req dto.UpdatePaymentMethodRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sub.RequireNotCanceled(); err != nil {
		return nil, err
	}

	err = s.Gateway.AttachPaymentMethod(ctx, &interfaces.AttachPaymentMethodRequest{
		CustomerID:              sub.ProcessorCustomerID,
		ProcessorSubscriptionID: sub.ProcessorSubscriptionID,
		PaymentMethodID:         req.PaymentMethodID,
		IdempotencyKey: s.Idempotency.GenerateKey(idempotency.ScopePaymentMethod, map[string]interface{}{
			"subscription_id":   sub.ID,
			"payment_method_id": req.PaymentMethodID,
		}),
	})
	if err != nil {
		return nil, err
	}

	err = retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		sub.DefaultPaymentMethodID = lo.ToPtr(req.PaymentMethodID)
		sub.Touch(ctx, now)
		return s.SubRepo.Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("updated default payment method", "subscription_id", sub.ID)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

// applyPrice copies the price fields analytics and proration read onto the subscription.
func applyPrice(sub *subscription.Subscription, p *price.Price) {
	sub.PriceID = p.ID
	sub.Tier = p.Tier
	sub.BillingCycle = p.BillingCycle
	sub.UnitAmount = p.UnitAmount
	sub.Currency = p.Currency
}

// invoiceFromProcessor builds the local record of an invoice the processor created.
func invoiceFromProcessor(ctx context.Context, sub *subscription.Subscription, pi *interfaces.ProcessorInvoice, now time.Time) *invoice.Invoice {
	currency := price.NormalizeCurrency(pi.Currency)
	if currency == "" {
		currency = sub.Currency
	}

	inv := &invoice.Invoice{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID:     sub.ID,
		ProcessorInvoiceID: lo.ToPtr(pi.ID),
		AmountDue:          pi.AmountDue,
		Currency:           currency,
		Status:             types.InvoiceStatusOpen,
		BillingReason:      types.InvoiceBillingReasonFromProcessor(pi.BillingReason),
		AttemptCount:       pi.AttemptCount,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}

	switch types.InvoiceStatus(pi.Status) {
	case types.InvoiceStatusPaid:
		inv.MarkPaid(now)
	case types.InvoiceStatusDraft:
		inv.Status = types.InvoiceStatusDraft
	case types.InvoiceStatusUncollectible:
		inv.Status = types.InvoiceStatusUncollectible
	}
	return inv
}
