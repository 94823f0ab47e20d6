package dto

import (
	"time"

	"github.com/vibefunder/billing/internal/domain/dunning"
	"github.com/vibefunder/billing/internal/types"
)

// DunningAttemptsResponse is the payment recovery history of one subscription.
type DunningAttemptsResponse struct {
	SubscriptionID string                   `json:"subscription_id"`
	Status         types.SubscriptionStatus `json:"status"`
	InGracePeriod  bool                     `json:"in_grace_period"`
	GracePeriodEnd *time.Time               `json:"grace_period_end,omitempty"`
	Attempts       []*dunning.Attempt       `json:"attempts"`
}
