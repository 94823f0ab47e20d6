package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v82"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// ResolveDiscount looks up an active promotion code by its customer facing code.
func (g *Gateway) ResolveDiscount(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ierr.NewError("discount code is empty").
			WithHint("Discount code is invalid").
			Mark(ierr.ErrInvalidDiscount)
	}

	ctx, done := g.span(ctx, "promotion_codes.list", nil)
	defer done()

	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Limit = stripe.Int64(1)

	for promo, err := range g.api.V1PromotionCodes.List(ctx, params) {
		if err != nil {
			g.logger.Warnw("failed to resolve promotion code", "error", err)
			return "", classify(err, "promotion code lookup", ierr.ErrInvalidDiscount, "Discount code is invalid")
		}
		if promo.Active {
			return promo.ID, nil
		}
	}

	return "", ierr.NewError("promotion code not found").
		WithHint("Discount code is invalid").
		Mark(ierr.ErrInvalidDiscount)
}
