package temporal

import (
	"github.com/vibefunder/billing/internal/temporal/activities"
	"github.com/vibefunder/billing/internal/temporal/workflows"
	"go.temporal.io/sdk/worker"
)

// RegisterWorkflowsAndActivities registers all workflows and activities with a Temporal worker.
func RegisterWorkflowsAndActivities(w worker.Registry, sweeps *activities.SweepActivities) {
	w.RegisterWorkflow(workflows.SubscriptionRolloverWorkflow)
	w.RegisterWorkflow(workflows.GracePeriodExpiryWorkflow)

	// Struct registration names each activity after its method.
	w.RegisterActivity(sweeps)
}
