package activities

import (
	"context"

	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// SweepActivities runs the timestamp-driven billing sweeps inside Temporal.
type SweepActivities struct {
	subscriptions service.SubscriptionService
	dunning       service.DunningService
	logger        *logger.Logger
}

func NewSweepActivities(subscriptions service.SubscriptionService, dunning service.DunningService, logger *logger.Logger) *SweepActivities {
	return &SweepActivities{
		subscriptions: subscriptions,
		dunning:       dunning,
		logger:        logger,
	}
}

// RolloverPeriods advances every subscription whose period has ended.
func (a *SweepActivities) RolloverPeriods(ctx context.Context) (*dto.RolloverResponse, error) {
	result, err := a.subscriptions.RolloverPeriods(ctx)
	if err != nil {
		a.logger.Errorw("rollover sweep failed", "error", err)
		return nil, toActivityError(err)
	}

	a.logger.Infow("rollover sweep finished",
		"processed", result.Processed,
		"canceled", result.Canceled,
		"downgraded", result.Downgraded,
		"failed", result.Failed,
	)
	return result, nil
}

// ProcessGracePeriodExpiry cancels past_due subscriptions whose grace period ran out.
func (a *SweepActivities) ProcessGracePeriodExpiry(ctx context.Context) (*dto.GracePeriodSweepResponse, error) {
	result, err := a.dunning.ProcessGracePeriodExpiry(ctx)
	if err != nil {
		a.logger.Errorw("grace period sweep failed", "error", err)
		return nil, toActivityError(err)
	}

	a.logger.Infow("grace period sweep finished",
		"processed", result.Processed,
		"canceled", result.Canceled,
		"failed", result.Failed,
	)
	return result, nil
}

// toActivityError stops Temporal from retrying errors a retry cannot fix.
func toActivityError(err error) error {
	if ierr.IsValidation(err) || ierr.IsInvalidTransition(err) {
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), "billing_sweep", err)
	}
	return err
}
