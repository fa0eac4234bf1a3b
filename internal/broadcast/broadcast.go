// Package broadcast streams switcher connection and program input events to
// clients over Server-Sent Events and WebSocket.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Config holds the settings read from plugins.broadcast.
type Config struct {
	// KeepAlive is the interval of SSE comment lines and WebSocket pings.
	KeepAlive time.Duration `mapstructure:"keepalive"`
	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// OriginPatterns lists extra hosts allowed to open a WebSocket.
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

// DefaultConfig returns the broadcast defaults.
func DefaultConfig() Config {
	return Config{
		KeepAlive:    15 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Module implements the broadcast plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	bc     *Broadcaster
	detach func()
}

// New creates a new broadcast plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "broadcast",
		Version:     "0.1.0",
		Description: "Event streaming over SSE and WebSocket",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("broadcast: read config: %w", err)
		}
	}
	if m.cfg.KeepAlive <= 0 {
		return fmt.Errorf("broadcast: keepalive must be positive, got %s", m.cfg.KeepAlive)
	}
	if deps.Bus == nil {
		return errors.New("broadcast: event bus required")
	}

	m.bc = NewBroadcaster(deps.Metrics, m.logger)
	m.detach = m.bc.Attach(deps.Bus)
	m.logger.Info("broadcast module initialized", zap.Duration("keepalive", m.cfg.KeepAlive))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("broadcast module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.detach != nil {
		m.detach()
	}
	m.bc.Close()
	m.logger.Info("broadcast module stopped")
	return nil
}

// Health reports the subscriber count.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"subscribers": fmt.Sprint(m.bc.Len()),
			"last_status": m.bc.Snapshot().Status,
		},
	}
}

// Broadcaster returns the module's broadcaster.
func (m *Module) Broadcaster() *Broadcaster {
	return m.bc
}
