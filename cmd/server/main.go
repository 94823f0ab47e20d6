package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/vibefunder/billing/internal/api"
	"github.com/vibefunder/billing/internal/cache"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/integration"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/notification"
	"github.com/vibefunder/billing/internal/postgres"
	"github.com/vibefunder/billing/internal/pyroscope"
	"github.com/vibefunder/billing/internal/repository"
	"github.com/vibefunder/billing/internal/sentry"
	"github.com/vibefunder/billing/internal/service"
	"github.com/vibefunder/billing/internal/temporal"
	"github.com/vibefunder/billing/internal/types"
	"github.com/vibefunder/billing/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	// The deployment mode decides which modules join the graph, so the config
	// is read once up front as well as provided to fx.
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			validator.NewValidator,
			config.NewConfig,
			logger.NewLogger,
			cache.Initialize,
		),
		sentry.Module(),
		pyroscope.Module(),
		postgres.Module(),
		repository.Module(),
		integration.Module(),
		notification.Module,
		service.Module(),
	)

	switch mode {
	case types.ModeLocal:
		opts = append(opts, api.Module(), fx.Invoke(startAPIServer))
		if cfg.Temporal.Enabled {
			opts = append(opts, temporal.Module())
		}
	case types.ModeAPI:
		opts = append(opts, api.Module(), fx.Invoke(startAPIServer))
	case types.ModeConsumer:
		if cfg.Temporal.Enabled {
			opts = append(opts, temporal.Module())
		}
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}

	app := fx.New(opts...)
	app.Run()
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address, "mode", cfg.Deployment.Mode)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}
