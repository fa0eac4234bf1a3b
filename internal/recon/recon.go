// Package recon discovers production switchers and PTZ cameras on the local
// subnets.
package recon

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

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

// ErrSwitcherScanUnavailable is returned by ScanSwitchers when no switcher
// driver could be opened.
var ErrSwitcherScanUnavailable = errors.New("switcher scanning unavailable")

// Module implements the recon discovery plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	orch    *Orchestrator
	limiter *rate.Limiter

	driverErr error

	scanCtx    context.Context
	scanCancel context.CancelFunc
}

// New creates a new recon plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "recon",
		Version:     "0.1.0",
		Description: "Switcher and PTZ camera discovery on local subnets",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("recon: read config: %w", err)
		}
	}
	if err := m.cfg.Validate(); err != nil {
		return err
	}

	var pinger Pinger
	if m.cfg.PingMethod == PingTCP {
		pinger = NewTCPPinger(m.cfg.PingPorts, m.cfg.PingTimeout)
	} else {
		pinger = NewICMPPinger(m.cfg.PingTimeout, m.logger)
	}

	factory, err := device.Open(m.cfg.Driver)
	if err != nil {
		m.driverErr = err
		m.logger.Warn("switcher scanning disabled", zap.Error(err))
	}

	m.orch = NewOrchestrator(
		NewSubnetEnumerator(m.logger, m.cfg.SkipLinkLocal),
		NewLivenessProber(pinger, m.logger),
		NewSwitcherProber(factory, device.DefaultCatalog(), m.cfg.SwitcherTimeout, m.cfg.SwitcherWorkers, m.logger),
		NewCameraProber(m.cfg, m.logger),
		NewArtifactWriter(m.cfg.ArtifactDir),
		deps.Bus,
		newScanMetrics(deps.Metrics),
		m.logger,
	)
	if m.cfg.MDNSHints {
		m.orch.AddSwitcherHints(NewMDNSHints(m.cfg.MDNSService, m.cfg.MDNSTimeout, m.logger))
	}
	if m.cfg.SSDPHints {
		m.orch.AddCameraHints(NewSSDPHints(m.cfg.SSDPTimeout, m.logger))
	}
	m.limiter = rate.NewLimiter(rate.Limit(m.cfg.ScanRate), max(m.cfg.ScanBurst, 1))

	m.logger.Info("recon module initialized",
		zap.String("ping_method", m.cfg.PingMethod),
		zap.String("camera_mode", m.cfg.CameraMode),
		zap.Int("switcher_workers", m.cfg.SwitcherWorkers),
	)
	return nil
}

// Start clears the switcher artifact left by a previous run.
func (m *Module) Start(_ context.Context) error {
	m.scanCtx, m.scanCancel = context.WithCancel(context.Background())
	if err := m.orch.artifacts.ClearSwitchers(); err != nil {
		m.logger.Warn("failed to clear switcher artifact", zap.Error(err))
	} else {
		m.logger.Info("cleared switcher artifact", zap.String("path", m.orch.artifacts.Path(SwitcherArtifact)))
	}
	m.logger.Info("recon module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.scanCancel != nil {
		m.scanCancel()
	}
	m.logger.Info("recon module stopped")
	return nil
}

// Health reports whether switcher scanning has a driver.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.driverErr != nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: m.driverErr.Error(),
		}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// ScanSwitchers runs one switcher discovery scan.
func (m *Module) ScanSwitchers(ctx context.Context) ([]models.DiscoveredSwitcher, error) {
	if m.driverErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSwitcherScanUnavailable, m.driverErr)
	}
	return m.orch.ScanSwitchers(ctx)
}

// ScanCameras runs one camera discovery scan.
func (m *Module) ScanCameras(ctx context.Context) ([]models.DiscoveredCamera, error) {
	return m.orch.ScanCameras(ctx)
}
