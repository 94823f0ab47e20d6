package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
)

// AttachPaymentMethod attaches the method to the customer and sets it as the
// subscription's default. Card and request errors surface as invalid payment method.
func (g *Gateway) AttachPaymentMethod(ctx context.Context, req *interfaces.AttachPaymentMethodRequest) error {
	ctx, done := g.span(ctx, "payment_methods.attach", map[string]interface{}{"customer": req.CustomerID})
	defer done()

	attach := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(req.CustomerID),
	}
	attach.SetIdempotencyKey(req.IdempotencyKey + "-attach")

	if _, err := g.api.V1PaymentMethods.Attach(ctx, req.PaymentMethodID, attach); err != nil {
		g.logger.Warnw("stripe rejected payment method",
			"customer", req.CustomerID,
			"payment_method", req.PaymentMethodID,
			"error", err,
		)
		return classify(err, "payment method attach", ierr.ErrInvalidPaymentMethod, "Payment method was rejected")
	}

	update := &stripe.SubscriptionUpdateParams{
		DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
	}
	update.SetIdempotencyKey(req.IdempotencyKey + "-default")

	if _, err := g.api.V1Subscriptions.Update(ctx, req.ProcessorSubscriptionID, update); err != nil {
		g.logger.Warnw("failed to set default payment method",
			"subscription", req.ProcessorSubscriptionID,
			"payment_method", req.PaymentMethodID,
			"error", err,
		)
		return classify(err, "default payment method update", ierr.ErrInvalidPaymentMethod, "Payment method was rejected")
	}
	return nil
}
