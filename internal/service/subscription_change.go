package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/proration"
	"github.com/vibefunder/billing/internal/domain/subscription"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/idempotency"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/types"
)

const (
	metadataMigratedFromPriceID = "migrated_from_price_id"
	metadataMigratedAt          = "migrated_at"
)

// UpgradeSubscription moves a subscription to a higher tier immediately, or only
// computes what that would cost in preview mode.
func (s *subscriptionService) UpgradeSubscription(ctx context.Context, id string, req dto.ChangeTierRequest) (*dto.ChangeTierResponse, error) {
	if err := req.Validate(types.UpgradeModes); err != nil {
		return nil, err
	}
	return s.changeTier(ctx, id, req, proration.ActionUpgrade)
}

// DowngradeSubscription moves a subscription to a lower tier at the end of the
// period, or immediately with a prorated credit.
func (s *subscriptionService) DowngradeSubscription(ctx context.Context, id string, req dto.ChangeTierRequest) (*dto.ChangeTierResponse, error) {
	if err := req.Validate(types.DowngradeModes); err != nil {
		return nil, err
	}
	if req.Mode == types.ChangeModeAtPeriodEnd {
		return s.scheduleDowngrade(ctx, id, req)
	}
	return s.changeTier(ctx, id, req, proration.ActionDowngrade)
}

// changeTier is shared by preview and immediate changes. The proration instant is
// captured once so the previewed numbers are the invoiced ones.
func (s *subscriptionService) changeTier(ctx context.Context, id string, req dto.ChangeTierRequest, action proration.Action) (*dto.ChangeTierResponse, error) {
	now := s.now()
	log := s.Logger.WithContext(ctx)

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTierChange(sub, req.NewTier, action); err != nil {
		return nil, err
	}

	newPrice, err := s.priceCatalog.Resolve(ctx, sub.CampaignID, req.NewTier, sub.BillingCycle)
	if err != nil {
		return nil, err
	}

	result, err := s.prorate(sub, newPrice, action, now)
	if err != nil {
		return nil, err
	}

	resp := &dto.ChangeTierResponse{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		Tier:           sub.Tier,
		Mode:           req.Mode,
		Proration:      dto.NewProrationResponse(result),
	}
	if req.Mode == types.ChangeModePreview {
		return resp, nil
	}

	// A scheduled downgrade already moved the processor's price. Put the current
	// price back first so the processor credits what billing credits.
	if sub.ScheduledDowngradeTier != nil {
		if err := restoreProcessorPrice(ctx, s.ServiceParams, sub, "tier_change"); err != nil {
			return nil, err
		}
	}

	behavior, prorationDate := types.ProrationBehaviorAlwaysInvoice, &now
	if sub.InTrial(now) {
		behavior, prorationDate = types.ProrationBehaviorNone, nil
	}

	processorSub, err := s.Gateway.ChangePrice(ctx, &interfaces.ChangePriceRequest{
		ProcessorSubscriptionID: sub.ProcessorSubscriptionID,
		ProcessorPriceID:        newPrice.ProcessorPriceID,
		ProrationBehavior:       behavior,
		ProrationDate:           prorationDate,
		IdempotencyKey: s.Idempotency.GenerateKey(idempotency.ScopeChangePrice, map[string]interface{}{
			"subscription_id": sub.ID,
			"price_id":        newPrice.ID,
			"proration_date":  now.Unix(),
		}),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"tier":            newPrice.Tier.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	err = retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			current, err := s.SubRepo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := validateTierChange(current, req.NewTier, action); err != nil {
				return err
			}

			applyPrice(current, newPrice)
			current.ScheduledDowngradeTier = nil
			current.Touch(ctx, now)
			if err := s.SubRepo.Update(ctx, current); err != nil {
				return err
			}

			// A negative net stays with the processor as customer credit.
			inv = nil
			if result.NetAmount > 0 {
				inv, err = s.recordProrationInvoice(ctx, current, result, processorSub, now)
				if err != nil {
					return err
				}
			}
			sub = current
			return nil
		})
	})
	if err != nil {
		log.Errorw("processor price changed but the local subscription was not updated",
			"subscription_id", id,
			"price_id", newPrice.ID,
			"error", err,
		)
		return nil, err
	}

	log.Infow("changed subscription tier",
		"subscription_id", sub.ID,
		"action", action,
		"tier", sub.Tier,
		"price_id", sub.PriceID,
		"net_amount", result.NetAmount,
		"currency", result.Currency,
	)

	resp.Status = sub.Status
	resp.Tier = sub.Tier
	if inv != nil {
		resp.Proration.InvoiceID = inv.ID
	}
	return resp, nil
}

func (s *subscriptionService) scheduleDowngrade(ctx context.Context, id string, req dto.ChangeTierRequest) (*dto.ChangeTierResponse, error) {
	now := s.now()

	var sub *subscription.Subscription
	err := retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := validateTierChange(sub, req.NewTier, proration.ActionDowngrade); err != nil {
			return err
		}
		target, err := s.priceCatalog.Resolve(ctx, sub.CampaignID, req.NewTier, sub.BillingCycle)
		if err != nil {
			return err
		}
		if err := sub.ScheduleDowngrade(req.NewTier); err != nil {
			return err
		}

		// The processor renews on its own at period end, so it gets the lower price
		// now without proration. Billing switches the tier at rollover.
		_, err = s.Gateway.ChangePrice(ctx, &interfaces.ChangePriceRequest{
			ProcessorSubscriptionID: sub.ProcessorSubscriptionID,
			ProcessorPriceID:        target.ProcessorPriceID,
			ProrationBehavior:       types.ProrationBehaviorNone,
			IdempotencyKey: s.Idempotency.GenerateKey(idempotency.ScopeChangePrice, map[string]interface{}{
				"subscription_id": sub.ID,
				"price_id":        target.ID,
				"version":         sub.Version,
			}),
			Metadata: map[string]string{
				"subscription_id": sub.ID,
				"tier":            target.Tier.String(),
				"effective_at":    sub.CurrentPeriodEnd.Format(time.RFC3339),
			},
		})
		if err != nil {
			return err
		}

		sub.Touch(ctx, now)
		return s.SubRepo.Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("scheduled downgrade",
		"subscription_id", sub.ID,
		"tier", sub.Tier,
		"scheduled_tier", req.NewTier,
		"effective_at", sub.CurrentPeriodEnd,
	)

	return &dto.ChangeTierResponse{
		SubscriptionID:         sub.ID,
		Status:                 sub.Status,
		Tier:                   sub.Tier,
		Mode:                   req.Mode,
		ScheduledDowngradeTier: sub.ScheduledDowngradeTier,
	}, nil
}

// MigrateSubscription moves a subscription onto another price without proration,
// e.g. when a campaign reprices a tier. The prior price is kept for audit.
func (s *subscriptionService) MigrateSubscription(ctx context.Context, id string, req dto.MigrateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()

	newPrice, err := s.priceCatalog.Get(ctx, req.NewPriceID)
	if err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sub.RequireNotCanceled(); err != nil {
		return nil, err
	}
	if newPrice.CampaignID != sub.CampaignID {
		return nil, ierr.NewError("price belongs to another campaign").
			WithHint("The new price must belong to the subscription's campaign").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"price_id":        newPrice.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	if newPrice.ID == sub.PriceID {
		return nil, ierr.NewError("subscription is already on this price").
			WithHint("Subscription is already on the requested price").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"price_id":        newPrice.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	_, err = s.Gateway.ChangePrice(ctx, &interfaces.ChangePriceRequest{
		ProcessorSubscriptionID: sub.ProcessorSubscriptionID,
		ProcessorPriceID:        newPrice.ProcessorPriceID,
		ProrationBehavior:       types.ProrationBehaviorNone,
		IdempotencyKey: s.Idempotency.GenerateKey(idempotency.ScopeMigratePrice, map[string]interface{}{
			"subscription_id": sub.ID,
			"from_price_id":   sub.PriceID,
			"price_id":        newPrice.ID,
		}),
		Metadata: map[string]string{
			"subscription_id":           sub.ID,
			metadataMigratedFromPriceID: sub.PriceID,
		},
	})
	if err != nil {
		return nil, err
	}

	err = retryOnConflict(ctx, s.ServiceParams, id, func(ctx context.Context) error {
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			current, err := s.SubRepo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := current.RequireNotCanceled(); err != nil {
				return err
			}
			if current.PriceID == newPrice.ID {
				sub = current
				return nil
			}

			prior := current.PriceID
			applyPrice(current, newPrice)
			current.PriorPriceID = lo.ToPtr(prior)
			if current.Metadata == nil {
				current.Metadata = types.Metadata{}
			}
			current.Metadata[metadataMigratedFromPriceID] = prior
			current.Metadata[metadataMigratedAt] = now.Format(time.RFC3339)
			current.Touch(ctx, now)
			if err := s.SubRepo.Update(ctx, current); err != nil {
				return err
			}

			audit := &invoice.Invoice{
				ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
				SubscriptionID: current.ID,
				Currency:       current.Currency,
				Status:         types.InvoiceStatusOpen,
				BillingReason:  types.InvoiceBillingReasonMigration,
				BaseModel:      types.GetDefaultBaseModel(ctx),
			}
			audit.MarkPaid(now)
			if err := s.InvoiceRepo.Create(ctx, audit); err != nil {
				return err
			}

			sub = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("migrated subscription price",
		"subscription_id", sub.ID,
		"prior_price_id", lo.FromPtr(sub.PriorPriceID),
		"price_id", sub.PriceID,
	)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) prorate(sub *subscription.Subscription, newPrice *price.Price, action proration.Action, at time.Time) (*proration.Result, error) {
	if price.NormalizeCurrency(newPrice.Currency) != price.NormalizeCurrency(sub.Currency) {
		return nil, ierr.NewError("currency mismatch between prices").
			WithHint("The new tier is priced in a different currency").
			WithReportableDetails(map[string]any{
				"subscription_currency": sub.Currency,
				"price_currency":        newPrice.Currency,
			}).
			Mark(ierr.ErrValidation)
	}

	result, err := s.Calculator.Calculate(proration.Params{
		SubscriptionID:     sub.ID,
		Action:             action,
		OldPriceID:         sub.PriceID,
		NewPriceID:         newPrice.ID,
		OldAmount:          sub.UnitAmount,
		NewAmount:          newPrice.UnitAmount,
		Currency:           sub.Currency,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		ProrationDate:      at,
	})
	if err != nil {
		return nil, err
	}

	// Nothing was charged for the trial, so there is nothing to credit or top up.
	if sub.InTrial(at) {
		result.Amounts = proration.Amounts{}
		result.Credit.Amount = 0
		result.Charge.Amount = 0
	}
	return result, nil
}

// restoreProcessorPrice puts the processor back on the subscription's current
// price without proration, undoing the early push of a scheduled downgrade.
func restoreProcessorPrice(ctx context.Context, params ServiceParams, sub *subscription.Subscription, reason string) error {
	if sub.ProcessorSubscriptionID == "" {
		return nil
	}
	current, err := params.PriceRepo.Get(ctx, sub.PriceID)
	if err != nil {
		return err
	}

	_, err = params.Gateway.ChangePrice(ctx, &interfaces.ChangePriceRequest{
		ProcessorSubscriptionID: sub.ProcessorSubscriptionID,
		ProcessorPriceID:        current.ProcessorPriceID,
		ProrationBehavior:       types.ProrationBehaviorNone,
		IdempotencyKey: params.Idempotency.GenerateKey(idempotency.ScopeRestorePrice, map[string]interface{}{
			"subscription_id": sub.ID,
			"price_id":        current.ID,
			"reason":          reason,
			"version":         sub.Version,
		}),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"tier":            current.Tier.String(),
		},
	})
	return err
}

// recordProrationInvoice stores the local invoice for a positive proration. When the
// processor already reported the invoice (its webhook can arrive first) that row is reused.
func (s *subscriptionService) recordProrationInvoice(
	ctx context.Context,
	sub *subscription.Subscription,
	result *proration.Result,
	processorSub *interfaces.ProcessorSubscription,
	now time.Time,
) (*invoice.Invoice, error) {
	var processorInvoiceID *string
	if latest := processorInvoice(processorSub); latest != nil {
		processorInvoiceID = lo.ToPtr(latest.ID)

		existing, err := s.InvoiceRepo.GetByProcessorID(ctx, *processorInvoiceID)
		if err == nil {
			return existing, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	inv := &invoice.Invoice{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID:     sub.ID,
		ProcessorInvoiceID: processorInvoiceID,
		AmountDue:          result.NetAmount,
		Currency:           result.Currency,
		Status:             types.InvoiceStatusOpen,
		BillingReason:      types.InvoiceBillingReasonProration,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	if latest := processorInvoice(processorSub); latest != nil {
		switch {
		case latest.AmountDue != result.NetAmount:
			// Left open; the processor's payment event settles it against its own amount.
			s.Logger.WithContext(ctx).Warnw("processor proration invoice disagrees with computed amount",
				"subscription_id", sub.ID,
				"processor_invoice_id", latest.ID,
				"processor_amount_due", latest.AmountDue,
				"net_amount", result.NetAmount,
			)
		case types.InvoiceStatus(latest.Status) == types.InvoiceStatusPaid:
			inv.MarkPaid(now)
		}
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func processorInvoice(processorSub *interfaces.ProcessorSubscription) *interfaces.ProcessorInvoice {
	if processorSub == nil || processorSub.LatestInvoice == nil || processorSub.LatestInvoice.ID == "" {
		return nil
	}
	return processorSub.LatestInvoice
}

// validateTierChange checks that a tier change goes in the direction of action.
func validateTierChange(sub *subscription.Subscription, newTier types.TierType, action proration.Action) error {
	if err := sub.RequireNotCanceled(); err != nil {
		return err
	}

	valid := newTier.Rank() > sub.Tier.Rank()
	hint := "The new tier must be above the current tier"
	if action == proration.ActionDowngrade {
		valid = newTier.Rank() < sub.Tier.Rank()
		hint = "The new tier must be below the current tier"
	}
	if !valid {
		return ierr.NewError("tier change goes the wrong way").
			WithHint(hint).
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"current_tier":    sub.Tier,
				"new_tier":        newTier,
				"action":          action,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
