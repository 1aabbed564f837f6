package app

import (
	"context"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/config"
	"github.com/tarunspandit/imersa/internal/sysprofile"
	"github.com/tarunspandit/imersa/internal/uuidmap"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Profile  *sysprofile.Profile
	Registry *bridge.Registry
	Mapper   *uuidmap.Mapper

	// High-level services
	Stream *StreamService
	Health *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Classify the host once; sessions read the derived settings only.
	s.Profile = sysprofile.Detect()

	// Resource registry, populated by the REST layer.
	s.Registry = bridge.NewRegistry()

	// Persisted upstream UUID mapping cache.
	s.Mapper = uuidmap.New(cfg.GetUUIDMappingPath())

	// Entertainment stream service (the control surface drives it).
	s.Stream = NewStreamService(cfg, s.Profile, s.Registry, s.Mapper)

	// Health service reports liveness and session state.
	s.Health = NewHealthService(cfg, s.Stream)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is reserved for services that can fail asynchronously.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Health.Start(ctx)
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Stream.StopAll()
	return nil
}
