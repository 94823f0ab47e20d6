package dto

import "github.com/vibefunder/billing/internal/types"

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// MonetaryAmount carries an amount both in minor units and as a major unit decimal string.
type MonetaryAmount struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Display  string `json:"display"`
}

func NewMonetaryAmount(currency string, amount int64) MonetaryAmount {
	return MonetaryAmount{
		Currency: currency,
		Amount:   amount,
		Display:  types.FormatMajor(amount, currency),
	}
}

// Warnings collects soft failures that did not fail the request,
// e.g. a notification that could not be published.
type Warnings []string

func (w *Warnings) Add(msg string) {
	*w = append(*w, msg)
}
