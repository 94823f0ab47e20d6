package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/temporal/models"
	"go.temporal.io/sdk/client"
)

type startedRun struct {
	client.WorkflowRun
	id string
}

func (r startedRun) GetID() string    { return r.id }
func (r startedRun) GetRunID() string { return "run_" + r.id }

type recordingStarter struct {
	options []client.StartWorkflowOptions
	names   []string
}

func (r *recordingStarter) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, workflow interface{}, _ ...interface{}) (client.WorkflowRun, error) {
	r.options = append(r.options, options)
	r.names = append(r.names, workflow.(string))
	return startedRun{id: options.ID}, nil
}

func TestStartCronWorkflows(t *testing.T) {
	starter := &recordingStarter{}
	cfg := &config.TemporalConfig{
		TaskQueue:          "billing-sweeps",
		RolloverSchedule:   "*/10 * * * *",
		GraceSweepSchedule: "0 * * * *",
	}

	svc := newService(starter, cfg, logger.NewNopLogger())
	require.NoError(t, svc.StartCronWorkflows(context.Background()))

	assert.Equal(t, []string{models.RolloverWorkflowName, models.GraceExpiryWorkflowName}, starter.names)
	require.Len(t, starter.options, 2)
	assert.Equal(t, models.RolloverWorkflowID, starter.options[0].ID)
	assert.Equal(t, "*/10 * * * *", starter.options[0].CronSchedule)
	assert.Equal(t, "billing-sweeps", starter.options[0].TaskQueue)
	assert.Equal(t, "0 * * * *", starter.options[1].CronSchedule)
}

func TestStartCronWorkflowsSkipsEmptySchedule(t *testing.T) {
	starter := &recordingStarter{}
	cfg := &config.TemporalConfig{
		TaskQueue:        "billing-sweeps",
		RolloverSchedule: "*/10 * * * *",
	}

	svc := newService(starter, cfg, logger.NewNopLogger())
	require.NoError(t, svc.StartCronWorkflows(context.Background()))
	assert.Equal(t, []string{models.RolloverWorkflowName}, starter.names)
}
