package proration

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibefunder/billing/internal/types"
)

// Action is the kind of change being prorated.
type Action string

const (
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
)

// Params holds all the input for prorating a price change inside one billing period.
type Params struct {
	SubscriptionID string
	Action         Action

	OldPriceID string
	NewPriceID string
	// OldAmount and NewAmount are full-period prices in minor units.
	OldAmount int64
	NewAmount int64
	Currency  string

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	// ProrationDate is the instant the change takes effect.
	ProrationDate time.Time

	// Timezone sets calendar day boundaries for the day based strategy. Defaults to UTC.
	Timezone string
}

// LineItem is one side of a proration.
type LineItem struct {
	Description string    `json:"description"`
	Amount      int64     `json:"amount"` // negative for a credit
	PriceID     string    `json:"price_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsCredit    bool      `json:"is_credit"`
}

// Amounts is the money part of a proration, in minor units.
type Amounts struct {
	CreditAmount int64 `json:"credit_amount"` // <= 0
	ChargeAmount int64 `json:"charge_amount"` // >= 0
	NetAmount    int64 `json:"net_amount"`
}

// Result holds the output of a proration calculation.
type Result struct {
	Amounts

	Credit          LineItem                `json:"credit"`
	Charge          LineItem                `json:"charge"`
	ElapsedFraction decimal.Decimal         `json:"elapsed_fraction"`
	Currency        string                  `json:"currency"`
	Action          Action                  `json:"action"`
	ProrationDate   time.Time               `json:"proration_date"`
	Strategy        types.ProrationStrategy `json:"strategy"`
}
