package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/config"
	"github.com/dokzlo13/huestrip/internal/db"
	"github.com/dokzlo13/huestrip/internal/history"
	"github.com/dokzlo13/huestrip/internal/hue"
	"github.com/dokzlo13/huestrip/internal/sink"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Optional colour history
	DB      *db.DB
	History *history.History

	// High-level services
	Strip  *StripService
	Health *HealthService
}

// NewServices creates all services talking to the configured bridge and sinks.
func NewServices(cfg *config.Config) (*Services, error) {
	out, err := BuildSinks(cfg)
	if err != nil {
		return nil, err
	}
	source := hue.NewBridgeSource(cfg.Hue.Bridge, cfg.Hue.Token)
	return NewServicesWith(cfg, source, out)
}

// NewServicesWith creates all services on an explicit bulb source and sink.
func NewServicesWith(cfg *config.Config, source hue.Source, out sink.Sink) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Strip = NewStripService(cfg, source, out)

	if cfg.History.Enabled {
		database, err := db.Open(cfg.History.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.History = history.New(database.DB)
		s.History.Subscribe(s.Strip.Bus)
		log.Info().Str("path", cfg.History.Path).Str("run_id", s.History.RunID()).Msg("Colour history enabled")
	}

	s.Health = NewHealthService(cfg, s.Strip, s.History)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Strip.Start(ctx); err != nil {
		return err
	}

	s.Strip.StartBackground(ctx)
	s.Health.Start(ctx)

	if s.History != nil {
		retention := time.Duration(s.cfg.History.RetentionDays) * 24 * time.Hour
		go s.History.RunCleanup(ctx, s.cfg.History.CleanupInterval.Duration(), retention)
	}

	return nil
}

// Stop gracefully stops all services. The context passed to Start must
// already be cancelled.
func (s *Services) Stop() error {
	err := s.Strip.Stop(s.cfg.GetShutdownTimeout())
	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Strip != nil {
		s.Strip.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
