package models

import "github.com/vibefunder/billing/internal/api/dto"

// Workflow names. Cron workflows are started by name so the worker and the
// scheduler only share these strings.
const (
	RolloverWorkflowName    = "SubscriptionRolloverWorkflow"
	GraceExpiryWorkflowName = "GracePeriodExpiryWorkflow"
)

// Activity names, matching the SweepActivities method names.
const (
	RolloverPeriodsActivity          = "RolloverPeriods"
	ProcessGracePeriodExpiryActivity = "ProcessGracePeriodExpiry"
)

// Workflow IDs are fixed so a restarted server attaches to the running cron
// instead of starting a second one.
const (
	RolloverWorkflowID    = "billing-subscription-rollover"
	GraceExpiryWorkflowID = "billing-grace-period-expiry"
)

// SweepResult is what a sweep workflow run reports.
type SweepResult struct {
	Workflow    string                        `json:"workflow"`
	Rollover    *dto.RolloverResponse         `json:"rollover,omitempty"`
	GraceExpiry *dto.GracePeriodSweepResponse `json:"grace_expiry,omitempty"`
}

// CronWorkflow pairs a workflow with the schedule it runs on.
type CronWorkflow struct {
	ID       string
	Name     string
	Schedule string
}
