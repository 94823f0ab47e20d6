package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
)

const (
	pauseBehaviorVoid           = "void"
	paymentBehaviorAllowPartial = "allow_incomplete"
)

func (g *Gateway) CreateSubscription(ctx context.Context, req *interfaces.CreateSubscriptionRequest) (*interfaces.ProcessorSubscription, error) {
	ctx, done := g.span(ctx, "subscriptions.create", map[string]interface{}{"customer": req.CustomerID})
	defer done()

	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(req.ProcessorPriceID)},
		},
		PaymentBehavior: stripe.String(paymentBehaviorAllowPartial),
	}
	if req.TrialEnd != nil {
		params.TrialEnd = stripe.Int64(req.TrialEnd.Unix())
	}
	if req.PromotionCodeID != "" {
		params.Discounts = []*stripe.SubscriptionCreateDiscountParams{
			{PromotionCode: stripe.String(req.PromotionCodeID)},
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice")
	params.SetIdempotencyKey(req.IdempotencyKey)

	sub, err := g.api.V1Subscriptions.Create(ctx, params)
	if err != nil {
		g.logger.Errorw("failed to create stripe subscription",
			"customer", req.CustomerID,
			"price", req.ProcessorPriceID,
			"error", err,
		)
		return nil, classify(err, "subscription create", ierr.ErrValidation, "Payment processor rejected the subscription")
	}
	return toProcessorSubscription(sub), nil
}

// ChangePrice swaps the price of the subscription's single item.
func (g *Gateway) ChangePrice(ctx context.Context, req *interfaces.ChangePriceRequest) (*interfaces.ProcessorSubscription, error) {
	ctx, done := g.span(ctx, "subscriptions.change_price", map[string]interface{}{
		"subscription":       req.ProcessorSubscriptionID,
		"proration_behavior": req.ProrationBehavior,
	})
	defer done()

	current, err := g.api.V1Subscriptions.Retrieve(ctx, req.ProcessorSubscriptionID, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return nil, classify(err, "subscription retrieve", ierr.ErrNotFound, "Subscription not found at the payment processor")
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, ierr.NewError("stripe subscription has no items").
			WithHint("Subscription cannot be changed").
			Mark(ierr.ErrSystem)
	}

	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(req.ProcessorPriceID),
			},
		},
		ProrationBehavior: stripe.String(req.ProrationBehavior.String()),
	}
	if req.ProrationDate != nil {
		params.ProrationDate = stripe.Int64(req.ProrationDate.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice")
	params.SetIdempotencyKey(req.IdempotencyKey)

	sub, err := g.api.V1Subscriptions.Update(ctx, req.ProcessorSubscriptionID, params)
	if err != nil {
		g.logger.Errorw("failed to change stripe subscription price",
			"subscription", req.ProcessorSubscriptionID,
			"price", req.ProcessorPriceID,
			"error", err,
		)
		return nil, classify(err, "subscription update", ierr.ErrValidation, "Payment processor rejected the price change")
	}
	return toProcessorSubscription(sub), nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	ctx, done := g.span(ctx, "subscriptions.cancel", map[string]interface{}{"subscription": processorSubscriptionID})
	defer done()

	params := &stripe.SubscriptionCancelParams{}
	params.SetIdempotencyKey(idempotencyKey)

	_, err := g.api.V1Subscriptions.Cancel(ctx, processorSubscriptionID, params)
	if err == nil {
		return nil
	}
	if isResourceMissing(err) {
		g.logger.Infow("stripe subscription already gone", "subscription", processorSubscriptionID)
		return nil
	}

	// Canceling twice is rejected as an invalid request; confirm the state before failing.
	if current, getErr := g.api.V1Subscriptions.Retrieve(ctx, processorSubscriptionID, &stripe.SubscriptionRetrieveParams{}); getErr == nil &&
		current.Status == stripe.SubscriptionStatusCanceled {
		g.logger.Infow("stripe subscription already canceled", "subscription", processorSubscriptionID)
		return nil
	}

	g.logger.Errorw("failed to cancel stripe subscription", "subscription", processorSubscriptionID, "error", err)
	return classify(err, "subscription cancel", ierr.ErrValidation, "Payment processor rejected the cancellation")
}

func (g *Gateway) SetCancelAtPeriodEnd(ctx context.Context, processorSubscriptionID string, cancel bool, idempotencyKey string) error {
	ctx, done := g.span(ctx, "subscriptions.cancel_at_period_end", map[string]interface{}{
		"subscription": processorSubscriptionID,
		"cancel":       cancel,
	})
	defer done()

	params := &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.api.V1Subscriptions.Update(ctx, processorSubscriptionID, params); err != nil {
		g.logger.Errorw("failed to set stripe cancel_at_period_end",
			"subscription", processorSubscriptionID,
			"cancel", cancel,
			"error", err,
		)
		return classify(err, "subscription update", ierr.ErrValidation, "Payment processor rejected the cancellation change")
	}
	return nil
}

func (g *Gateway) PauseCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	ctx, done := g.span(ctx, "subscriptions.pause", map[string]interface{}{"subscription": processorSubscriptionID})
	defer done()

	params := &stripe.SubscriptionUpdateParams{
		PauseCollection: &stripe.SubscriptionUpdatePauseCollectionParams{
			Behavior: stripe.String(pauseBehaviorVoid),
		},
	}
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.api.V1Subscriptions.Update(ctx, processorSubscriptionID, params); err != nil {
		g.logger.Errorw("failed to pause stripe subscription", "subscription", processorSubscriptionID, "error", err)
		return classify(err, "subscription pause", ierr.ErrValidation, "Payment processor rejected the pause")
	}
	return nil
}

func (g *Gateway) ResumeCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error {
	ctx, done := g.span(ctx, "subscriptions.resume", map[string]interface{}{"subscription": processorSubscriptionID})
	defer done()

	params := &stripe.SubscriptionUpdateParams{}
	// An empty value unsets pause_collection.
	params.AddExtra("pause_collection", "")
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.api.V1Subscriptions.Update(ctx, processorSubscriptionID, params); err != nil {
		g.logger.Errorw("failed to resume stripe subscription", "subscription", processorSubscriptionID, "error", err)
		return classify(err, "subscription resume", ierr.ErrValidation, "Payment processor rejected the resume")
	}
	return nil
}

func toProcessorSubscription(sub *stripe.Subscription) *interfaces.ProcessorSubscription {
	out := &interfaces.ProcessorSubscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if inv := sub.LatestInvoice; inv != nil && inv.ID != "" {
		out.LatestInvoice = &interfaces.ProcessorInvoice{
			ID:            inv.ID,
			AmountDue:     inv.AmountDue,
			AmountPaid:    inv.AmountPaid,
			Currency:      string(inv.Currency),
			Status:        string(inv.Status),
			BillingReason: string(inv.BillingReason),
			AttemptCount:  int(inv.AttemptCount),
		}
	}
	return out
}
