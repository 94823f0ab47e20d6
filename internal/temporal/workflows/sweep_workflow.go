package workflows

import (
	"time"

	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/temporal/models"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

func sweepActivityOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute * 10,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})
}

// SubscriptionRolloverWorkflow runs one rollover sweep. It is started as a cron
// workflow so each tick is a fresh run.
func SubscriptionRolloverWorkflow(ctx workflow.Context) (*models.SweepResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting subscription rollover sweep")

	ctx = sweepActivityOptions(ctx)

	var result dto.RolloverResponse
	if err := workflow.ExecuteActivity(ctx, models.RolloverPeriodsActivity).Get(ctx, &result); err != nil {
		logger.Error("Rollover sweep failed", "error", err)
		return nil, err
	}

	logger.Info("Subscription rollover sweep completed", "processed", result.Processed, "failed", result.Failed)
	return &models.SweepResult{
		Workflow: models.RolloverWorkflowName,
		Rollover: &result,
	}, nil
}

// GracePeriodExpiryWorkflow runs one grace period expiry sweep.
func GracePeriodExpiryWorkflow(ctx workflow.Context) (*models.SweepResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting grace period expiry sweep")

	ctx = sweepActivityOptions(ctx)

	var result dto.GracePeriodSweepResponse
	if err := workflow.ExecuteActivity(ctx, models.ProcessGracePeriodExpiryActivity).Get(ctx, &result); err != nil {
		logger.Error("Grace period sweep failed", "error", err)
		return nil, err
	}

	logger.Info("Grace period expiry sweep completed", "processed", result.Processed, "canceled", result.Canceled)
	return &models.SweepResult{
		Workflow:    models.GraceExpiryWorkflowName,
		GraceExpiry: &result,
	}, nil
}
