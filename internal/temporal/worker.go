package temporal

import (
	"context"

	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
	"github.com/vibefunder/billing/internal/temporal/activities"
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

// Worker manages the Temporal worker instance.
type Worker struct {
	worker worker.Worker
	log    *logger.Logger
}

// NewWorker creates a new Temporal worker and registers workflows and activities.
func NewWorker(
	client *TemporalClient,
	cfg *config.Configuration,
	subscriptions service.SubscriptionService,
	dunning service.DunningService,
	log *logger.Logger,
) *Worker {
	w := worker.New(client.Client, cfg.Temporal.TaskQueue, worker.Options{})

	RegisterWorkflowsAndActivities(w, activities.NewSweepActivities(subscriptions, dunning, log))

	return &Worker{
		worker: w,
		log:    log,
	}
}

// Start starts the Temporal worker.
func (w *Worker) Start() error {
	w.log.Info("Starting temporal worker...")
	return w.worker.Start()
}

// Stop stops the Temporal worker.
func (w *Worker) Stop() {
	w.log.Info("Stopping temporal worker...")
	if w.worker != nil {
		w.worker.Stop()
	}
}

// Module provides the Temporal client, worker and scheduler. The worker starts
// with the app and the sweep crons are scheduled once it is polling.
func Module() fx.Option {
	return fx.Module("temporal",
		fx.Provide(
			NewTemporalClient,
			NewService,
			NewWorker,
		),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, client *TemporalClient, w *Worker, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := w.Start(); err != nil {
				return err
			}
			return svc.StartCronWorkflows(ctx)
		},
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				w.Stop()
				client.Close()
				close(done)
			}()

			select {
			case <-done:
				w.log.Info("Temporal worker stopped successfully")
			case <-ctx.Done():
				w.log.Error("Timeout while stopping temporal worker")
			}
			return nil
		},
	})
}
