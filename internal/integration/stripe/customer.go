package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
)

const metadataBackerID = "backer_id"

// EnsureCustomer finds the customer tagged with the backer id or creates one.
func (g *Gateway) EnsureCustomer(ctx context.Context, req *interfaces.EnsureCustomerRequest) (string, error) {
	ctx, done := g.span(ctx, "customers.ensure", map[string]interface{}{"backer_id": req.BackerID})
	defer done()

	search := &stripe.CustomerSearchParams{}
	search.Query = fmt.Sprintf("metadata['%s']:'%s'", metadataBackerID, req.BackerID)
	search.Limit = stripe.Int64(1)

	for customer, err := range g.api.V1Customers.Search(ctx, search) {
		if err != nil {
			g.logger.Errorw("failed to search stripe customers", "backer_id", req.BackerID, "error", err)
			return "", classify(err, "customer search", ierr.ErrValidation, "Could not look up the backer at the payment processor")
		}
		return customer.ID, nil
	}

	params := &stripe.CustomerCreateParams{}
	params.AddMetadata(metadataBackerID, req.BackerID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	customer, err := g.api.V1Customers.Create(ctx, params)
	if err != nil {
		g.logger.Errorw("failed to create stripe customer", "backer_id", req.BackerID, "error", err)
		return "", classify(err, "customer create", ierr.ErrValidation, "Could not register the backer at the payment processor")
	}

	g.logger.Infow("created stripe customer", "backer_id", req.BackerID, "stripe_customer_id", customer.ID)
	return customer.ID, nil
}
