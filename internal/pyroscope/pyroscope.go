package pyroscope

import (
	"context"
	"strings"

	"github.com/grafana/pyroscope-go"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"go.uber.org/fx"
)

type Service struct {
	cfg      *config.Configuration
	logger   *logger.Logger
	profiler *pyroscope.Profiler
}

// Module provides fx options for Pyroscope
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewPyroscopeService),
		fx.Invoke(RegisterHooks),
	)
}

// RegisterHooks registers lifecycle hooks for Pyroscope
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Start()
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop()
		},
	})
}

// NewPyroscopeService creates a new Pyroscope service
func NewPyroscopeService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins continuous profiling when it is enabled.
func (s *Service) Start() error {
	if !s.IsEnabled() {
		s.logger.Info("Pyroscope profiling is disabled")
		return nil
	}

	profileTypes := s.getProfileTypes()
	pyroscopeConfig := pyroscope.Config{
		ApplicationName: s.cfg.Pyroscope.ApplicationName,
		ServerAddress:   s.cfg.Pyroscope.ServerAddress,
		ProfileTypes:    profileTypes,
		Logger:          s,
		Tags: map[string]string{
			"mode": string(s.cfg.Deployment.Mode),
		},
	}
	if s.cfg.Pyroscope.BasicAuthUser != "" {
		pyroscopeConfig.BasicAuthUser = s.cfg.Pyroscope.BasicAuthUser
		pyroscopeConfig.BasicAuthPassword = s.cfg.Pyroscope.BasicAuthPass
	}

	profiler, err := pyroscope.Start(pyroscopeConfig)
	if err != nil {
		s.logger.Errorw("Failed to initialize Pyroscope", "error", err)
		return err
	}
	s.logger.Infow("Pyroscope profiling initialized",
		"application_name", s.cfg.Pyroscope.ApplicationName,
		"server_address", s.cfg.Pyroscope.ServerAddress,
		"profile_types", profileTypes,
	)

	s.profiler = profiler
	return nil
}

// Stop flushes and stops the profiler if one is running.
func (s *Service) Stop() error {
	if s.profiler == nil {
		return nil
	}
	s.logger.Info("Stopping Pyroscope profiling")
	return s.profiler.Stop()
}

// Debugf is silenced; the profiler is chatty at debug level.
func (s *Service) Debugf(format string, args ...interface{}) {}

func (s *Service) Infof(format string, args ...interface{}) {
	s.logger.Infof("[Pyroscope] "+format, args...)
}

func (s *Service) Errorf(format string, args ...interface{}) {
	s.logger.Errorf("[Pyroscope] "+format, args...)
}

// IsEnabled returns whether Pyroscope profiling is enabled
func (s *Service) IsEnabled() bool {
	return s.cfg.Pyroscope.Enabled
}

func (s *Service) getProfileTypes() []pyroscope.ProfileType {
	if len(s.cfg.Pyroscope.ProfileTypes) == 0 {
		return []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileGoroutines,
		}
	}

	var types []pyroscope.ProfileType
	for _, profileType := range s.cfg.Pyroscope.ProfileTypes {
		switch strings.ToLower(profileType) {
		case "cpu":
			types = append(types, pyroscope.ProfileCPU)
		case "inuse_objects":
			types = append(types, pyroscope.ProfileInuseObjects)
		case "alloc_objects":
			types = append(types, pyroscope.ProfileAllocObjects)
		case "inuse_space":
			types = append(types, pyroscope.ProfileInuseSpace)
		case "alloc_space":
			types = append(types, pyroscope.ProfileAllocSpace)
		case "goroutines":
			types = append(types, pyroscope.ProfileGoroutines)
		case "mutex_count":
			types = append(types, pyroscope.ProfileMutexCount)
		case "block_count":
			types = append(types, pyroscope.ProfileBlockCount)
		default:
			s.logger.Warnw("Unknown profile type", "type", profileType)
		}
	}
	return types
}

// TagWrapper runs fn with profiling labels attached.
func (s *Service) TagWrapper(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	if !s.IsEnabled() {
		fn(ctx)
		return
	}

	labelPairs := make([]string, 0, len(labels)*2)
	for key, value := range labels {
		labelPairs = append(labelPairs, key, value)
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(labelPairs...), fn)
}
