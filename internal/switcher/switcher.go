// Package switcher holds the single authoritative switcher connection and
// the transition-safe switch queue in front of it.
package switcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/clock"
	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Config holds the settings read from plugins.switcher.
type Config struct {
	// Driver names the registered device driver. Empty picks the only one.
	Driver string `mapstructure:"driver"`
	// Address, when set, is connected to at start.
	Address     string `mapstructure:"address"`
	QueueTiming `mapstructure:",squash"`
}

// DefaultConfig returns the switcher defaults.
func DefaultConfig() Config {
	return Config{QueueTiming: DefaultQueueTiming()}
}

// Module implements the switcher plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	catalog *device.Catalog
	coord   *Coordinator
}

// New creates a new switcher plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "switcher",
		Version:     "0.1.0",
		Description: "Switcher connection, program switching and macros",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("switcher: read config: %w", err)
		}
	}

	factory, err := device.Open(m.cfg.Driver)
	if err != nil {
		return fmt.Errorf("switcher: %w", err)
	}
	m.catalog = device.DefaultCatalog()
	m.coord = NewCoordinator(factory, m.catalog, deps.Bus, clock.Real(), m.cfg.QueueTiming, deps.Metrics, m.logger)

	m.logger.Info("switcher module initialized",
		zap.Duration("settle_delay", m.cfg.Settle),
		zap.Duration("resume_delay", m.cfg.Resume),
		zap.Duration("poll_interval", m.cfg.Poll),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.coord.Start()
	if m.cfg.Address != "" {
		if err := m.coord.Connect(ctx, m.cfg.Address); err != nil {
			m.logger.Warn("initial connect failed", zap.String("ip", m.cfg.Address), zap.Error(err))
		}
	}
	m.logger.Info("switcher module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.coord.Stop()
	m.logger.Info("switcher module stopped")
	return nil
}

// Health reports the connection status.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	s := m.coord.Snapshot()
	status := "healthy"
	if s.Status == models.StatusError {
		status = "degraded"
	}
	details := map[string]string{"connection": string(s.Status)}
	if s.Address != "" {
		details["ip"] = s.Address
	}
	return plugin.HealthStatus{Status: status, Details: details}
}

// Coordinator returns the connection coordinator.
func (m *Module) Coordinator() *Coordinator {
	return m.coord
}
