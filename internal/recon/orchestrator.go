package recon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

var (
	// ErrNoSubnets aborts a scan when enumeration finds nothing to scan.
	ErrNoSubnets = errors.New("no usable subnets")
	// ErrScanInProgress is returned when a scan of the same kind is running.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrScanCancelled is returned when the scan context ends mid-scan. The
	// partial result is discarded and no artifact is written.
	ErrScanCancelled = errors.New("scan cancelled")
)

// subnetSource abstracts the enumerator for tests.
type subnetSource interface {
	Enumerate(ctx context.Context) []string
}

// Orchestrator runs discovery scans: enumerate, probe liveness subnet by
// subnet, confirm, dedup, persist.
type Orchestrator struct {
	subnets       subnetSource
	liveness      *LivenessProber
	switchers     *SwitcherProber
	cameras       *CameraProber
	switcherHints []HintSource
	cameraHints   []HintSource
	artifacts     *ArtifactWriter
	bus           plugin.EventBus
	metrics       *scanMetrics
	logger        *zap.Logger

	switcherBusy atomic.Bool
	cameraBusy   atomic.Bool
}

// NewOrchestrator wires the scan pipeline. bus and metrics may be nil.
func NewOrchestrator(
	subnets subnetSource,
	liveness *LivenessProber,
	switchers *SwitcherProber,
	cameras *CameraProber,
	artifacts *ArtifactWriter,
	bus plugin.EventBus,
	metrics *scanMetrics,
	logger *zap.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = newScanMetrics(nil)
	}
	return &Orchestrator{
		subnets:   subnets,
		liveness:  liveness,
		switchers: switchers,
		cameras:   cameras,
		artifacts: artifacts,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
	}
}

// AddSwitcherHints registers sources whose addresses skip liveness during
// switcher scans.
func (o *Orchestrator) AddSwitcherHints(src ...HintSource) {
	o.switcherHints = append(o.switcherHints, src...)
}

// AddCameraHints registers sources whose addresses skip liveness during
// camera scans.
func (o *Orchestrator) AddCameraHints(src ...HintSource) {
	o.cameraHints = append(o.cameraHints, src...)
}

// ScanSwitchers discovers switchers on every usable subnet. The switcher
// artifact is cleared once the scan is known to run and rewritten at the
// end. Results are de-duplicated by identity and sorted by address.
func (o *Orchestrator) ScanSwitchers(ctx context.Context) ([]models.DiscoveredSwitcher, error) {
	if !o.switcherBusy.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer o.switcherBusy.Store(false)

	kind := models.DeviceKindSwitcher
	subnets := o.subnets.Enumerate(ctx)
	if len(subnets) == 0 {
		o.metrics.scans.WithLabelValues(string(kind), "no_subnets").Inc()
		return nil, ErrNoSubnets
	}
	if err := o.artifacts.ClearSwitchers(); err != nil {
		o.logger.Warn("failed to clear switcher artifact", zap.Error(err))
	}

	start := time.Now()
	summary := o.begin(ctx, kind, subnets)
	hints := collectHints(ctx, o.switcherHints, o.logger)
	dedup := NewDeduplicator()

	var found []models.DiscoveredSwitcher
	confirm := func(addrs []string) {
		cands := o.switchers.Confirm(ctx, addrs)
		slices.SortFunc(cands, func(a, b models.DiscoveredSwitcher) int { return compareAddrs(a.IP, b.IP) })
		found = append(found, dedup.Filter(cands)...)
	}

	remaining := hints
	for _, subnet := range subnets {
		live := o.liveness.ProbeSubnet(ctx, subnet)
		summary.Alive += len(live)
		live, remaining = mergeHints(live, remaining, subnet)
		o.logger.Info("confirming switchers",
			zap.String("subnet", subnet),
			zap.Int("candidates", len(live)),
		)
		confirm(live)
	}
	o.dropHints(remaining)
	if err := o.cancelled(ctx, summary); err != nil {
		return nil, err
	}

	slices.SortFunc(found, func(a, b models.DiscoveredSwitcher) int { return compareAddrs(a.IP, b.IP) })
	if err := o.artifacts.WriteSwitchers(found); err != nil {
		o.logger.Warn("failed to write switcher artifact", zap.Error(err))
	}
	summary.Found = len(found)
	o.end(ctx, summary, start)
	return found, nil
}

// ScanCameras discovers PTZ cameras on every usable subnet. The camera
// artifact is only written at the end.
func (o *Orchestrator) ScanCameras(ctx context.Context) ([]models.DiscoveredCamera, error) {
	if !o.cameraBusy.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer o.cameraBusy.Store(false)

	kind := models.DeviceKindCamera
	subnets := o.subnets.Enumerate(ctx)
	if len(subnets) == 0 {
		o.metrics.scans.WithLabelValues(string(kind), "no_subnets").Inc()
		return nil, ErrNoSubnets
	}

	start := time.Now()
	summary := o.begin(ctx, kind, subnets)
	remaining := collectHints(ctx, o.cameraHints, o.logger)

	var found []models.DiscoveredCamera
	for _, subnet := range subnets {
		live := o.liveness.ProbeSubnet(ctx, subnet)
		summary.Alive += len(live)
		live, remaining = mergeHints(live, remaining, subnet)
		found = append(found, o.cameras.Confirm(ctx, live)...)
	}
	o.dropHints(remaining)
	if err := o.cancelled(ctx, summary); err != nil {
		return nil, err
	}

	slices.SortFunc(found, func(a, b models.DiscoveredCamera) int { return compareAddrs(a.IP, b.IP) })
	if err := o.artifacts.WriteCameras(found); err != nil {
		o.logger.Warn("failed to write camera artifact", zap.Error(err))
	}
	summary.Found = len(found)
	o.end(ctx, summary, start)
	return found, nil
}

func (o *Orchestrator) begin(ctx context.Context, kind models.DeviceKind, subnets []string) *models.ScanSummary {
	s := &models.ScanSummary{
		ID:        uuid.New().String(),
		Kind:      kind,
		Subnets:   subnets,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	o.logger.Info("scan started",
		zap.String("scan_id", s.ID),
		zap.String("kind", string(kind)),
		zap.Strings("subnets", subnets),
	)
	o.publish(ctx, TopicScanStarted, *s)
	return s
}

func (o *Orchestrator) end(ctx context.Context, s *models.ScanSummary, start time.Time) {
	s.EndedAt = time.Now().UTC().Format(time.RFC3339)

	kind := string(s.Kind)
	o.metrics.scans.WithLabelValues(kind, "completed").Inc()
	o.metrics.liveHosts.WithLabelValues(kind).Add(float64(s.Alive))
	o.metrics.found.WithLabelValues(kind).Set(float64(s.Found))
	o.metrics.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	o.logger.Info("scan completed",
		zap.String("scan_id", s.ID),
		zap.String("kind", kind),
		zap.Int("alive", s.Alive),
		zap.Int("found", s.Found),
	)
	o.publish(ctx, TopicScanCompleted, *s)
}

// cancelled reports a scan whose context ended. Probes under a cancelled
// context answer negatively, so their results must not reach the artifacts.
func (o *Orchestrator) cancelled(ctx context.Context, s *models.ScanSummary) error {
	if ctx.Err() == nil {
		return nil
	}
	o.metrics.scans.WithLabelValues(string(s.Kind), "cancelled").Inc()
	o.logger.Warn("scan cancelled, keeping previous results",
		zap.String("scan_id", s.ID),
		zap.String("kind", string(s.Kind)),
		zap.Error(ctx.Err()),
	)
	return fmt.Errorf("%w: %w", ErrScanCancelled, ctx.Err())
}

func (o *Orchestrator) publish(ctx context.Context, topic string, s models.ScanSummary) {
	if o.bus == nil {
		return
	}
	o.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "recon",
		Timestamp: time.Now(),
		Payload:   s,
	})
}

// dropHints logs hints outside every scanned subnet. They are not probed.
func (o *Orchestrator) dropHints(hints []string) {
	for _, h := range hints {
		o.logger.Debug("ignoring hint outside scanned subnets", zap.String("ip", h))
	}
}

// mergeHints adds the hints that fall in subnet to live and returns the
// hints left for later subnets.
func mergeHints(live, hints []string, subnet string) (merged, rest []string) {
	merged = live
	for _, h := range hints {
		if !InSubnet(h, subnet) {
			rest = append(rest, h)
			continue
		}
		if !slices.Contains(merged, h) {
			merged = append(merged, h)
		}
	}
	sortAddrs(merged)
	return merged, rest
}
