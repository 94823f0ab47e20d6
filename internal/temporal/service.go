package temporal

import (
	"context"

	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/temporal/models"
	"go.temporal.io/sdk/client"
)

// Starter is the part of the SDK client the scheduler uses.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Service starts the billing sweep cron workflows.
type Service struct {
	starter Starter
	log     *logger.Logger
	cfg     *config.TemporalConfig
}

// NewService creates a new Temporal service
func NewService(c *TemporalClient, cfg *config.Configuration, log *logger.Logger) *Service {
	return newService(c.Client, &cfg.Temporal, log)
}

func newService(starter Starter, cfg *config.TemporalConfig, log *logger.Logger) *Service {
	return &Service{
		starter: starter,
		log:     log,
		cfg:     cfg,
	}
}

// CronWorkflows lists the sweeps and the schedules they run on.
func (s *Service) CronWorkflows() []models.CronWorkflow {
	return []models.CronWorkflow{
		{
			ID:       models.RolloverWorkflowID,
			Name:     models.RolloverWorkflowName,
			Schedule: s.cfg.RolloverSchedule,
		},
		{
			ID:       models.GraceExpiryWorkflowID,
			Name:     models.GraceExpiryWorkflowName,
			Schedule: s.cfg.GraceSweepSchedule,
		},
	}
}

// StartCronWorkflows starts every sweep as a cron workflow. Starting a workflow
// whose ID is already running returns the running one, so calling this on every
// boot is safe.
func (s *Service) StartCronWorkflows(ctx context.Context) error {
	for _, wf := range s.CronWorkflows() {
		if wf.Schedule == "" {
			s.log.Warnw("skipping sweep without a schedule", "workflow", wf.Name)
			continue
		}

		run, err := s.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:           wf.ID,
			TaskQueue:    s.cfg.TaskQueue,
			CronSchedule: wf.Schedule,
		}, wf.Name)
		if err != nil {
			s.log.Errorw("failed to start sweep workflow", "workflow", wf.Name, "error", err)
			return ierr.WithError(err).
				WithHint("Could not schedule billing sweep").
				WithReportableDetails(map[string]any{"workflow": wf.Name}).
				Mark(ierr.ErrSystem)
		}

		s.log.Infow("scheduled sweep workflow",
			"workflow", wf.Name,
			"workflow_id", run.GetID(),
			"run_id", run.GetRunID(),
			"schedule", wf.Schedule,
		)
	}
	return nil
}
