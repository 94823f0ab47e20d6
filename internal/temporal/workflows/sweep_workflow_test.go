package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
	"github.com/vibefunder/billing/internal/temporal/activities"
	"github.com/vibefunder/billing/internal/temporal/models"
	"go.temporal.io/sdk/testsuite"
)

type stubSubscriptions struct {
	service.SubscriptionService
	result *dto.RolloverResponse
	err    error
	calls  int
}

func (s *stubSubscriptions) RolloverPeriods(context.Context) (*dto.RolloverResponse, error) {
	s.calls++
	return s.result, s.err
}

type stubDunning struct {
	service.DunningService
	result *dto.GracePeriodSweepResponse
	err    error
	calls  int
}

func (s *stubDunning) ProcessGracePeriodExpiry(context.Context) (*dto.GracePeriodSweepResponse, error) {
	s.calls++
	return s.result, s.err
}

type SweepWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env           *testsuite.TestWorkflowEnvironment
	subscriptions *stubSubscriptions
	dunning       *stubDunning
}

func TestSweepWorkflows(t *testing.T) {
	suite.Run(t, new(SweepWorkflowSuite))
}

func (s *SweepWorkflowSuite) SetupTest() {
	s.subscriptions = &stubSubscriptions{}
	s.dunning = &stubDunning{}

	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(SubscriptionRolloverWorkflow)
	s.env.RegisterWorkflow(GracePeriodExpiryWorkflow)
	s.env.RegisterActivity(activities.NewSweepActivities(s.subscriptions, s.dunning, logger.NewNopLogger()))
}

func (s *SweepWorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *SweepWorkflowSuite) TestRolloverWorkflow() {
	s.subscriptions.result = &dto.RolloverResponse{Processed: 3, Canceled: 1, Downgraded: 1}

	s.env.ExecuteWorkflow(SubscriptionRolloverWorkflow)
	s.Require().True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())

	var result models.SweepResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.RolloverWorkflowName, result.Workflow)
	s.Require().NotNil(result.Rollover)
	s.Equal(3, result.Rollover.Processed)
	s.Equal(1, result.Rollover.Downgraded)
	s.Nil(result.GraceExpiry)
	s.Equal(1, s.subscriptions.calls)
}

func (s *SweepWorkflowSuite) TestGracePeriodExpiryWorkflow() {
	s.dunning.result = &dto.GracePeriodSweepResponse{Processed: 2, Canceled: 2}

	s.env.ExecuteWorkflow(GracePeriodExpiryWorkflow)
	s.Require().True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())

	var result models.SweepResult
	s.Require().NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.GraceExpiryWorkflowName, result.Workflow)
	s.Require().NotNil(result.GraceExpiry)
	s.Equal(2, result.GraceExpiry.Canceled)
	s.Zero(s.subscriptions.calls)
}

func (s *SweepWorkflowSuite) TestTransientFailureIsRetried() {
	s.dunning.err = ierr.NewError("database is down").Mark(ierr.ErrDatabase)

	s.env.ExecuteWorkflow(GracePeriodExpiryWorkflow)
	s.Require().True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.Equal(3, s.dunning.calls)
}

func (s *SweepWorkflowSuite) TestValidationFailureIsNotRetried() {
	s.subscriptions.err = ierr.NewError("bad batch size").Mark(ierr.ErrValidation)

	s.env.ExecuteWorkflow(SubscriptionRolloverWorkflow)
	s.Require().True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.Equal(1, s.subscriptions.calls)
}
