package recon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/pkg/models"
)

// SwitcherProber confirms switchers by opening a throwaway protocol
// connection to each candidate and reading back its identity.
type SwitcherProber struct {
	factory device.Factory
	catalog *device.Catalog
	timeout time.Duration
	workers int
	logger  *zap.Logger
}

// NewSwitcherProber returns a prober with a fixed worker ceiling.
func NewSwitcherProber(factory device.Factory, catalog *device.Catalog, timeout time.Duration, workers int, logger *zap.Logger) *SwitcherProber {
	if workers < 1 {
		workers = 1
	}
	return &SwitcherProber{
		factory: factory,
		catalog: catalog,
		timeout: timeout,
		workers: workers,
		logger:  logger,
	}
}

// Confirm probes addrs with at most p.workers connections open at once.
// Workers pull from a shared queue until it is empty. Result order is not
// defined.
func (p *SwitcherProber) Confirm(ctx context.Context, addrs []string) []models.DiscoveredSwitcher {
	if len(addrs) == 0 {
		return nil
	}

	queue := make(chan string, len(addrs))
	for _, a := range addrs {
		queue <- a
	}
	close(queue)

	var (
		mu    sync.Mutex
		found []models.DiscoveredSwitcher
		wg    sync.WaitGroup
	)
	workers := min(p.workers, len(addrs))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range queue {
				sw, ok := p.probe(ctx, addr)
				if !ok {
					continue
				}
				mu.Lock()
				found = append(found, sw)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return found
}

// probe opens one connection, waits for connected or the timeout, and
// always tears the connection down.
func (p *SwitcherProber) probe(ctx context.Context, addr string) (models.DiscoveredSwitcher, bool) {
	conn := p.factory()
	defer func() {
		if err := conn.Disconnect(); err != nil {
			p.logger.Debug("probe disconnect failed", zap.String("ip", addr), zap.Error(err))
		}
	}()

	if err := conn.Connect(addr); err != nil {
		return models.DiscoveredSwitcher{}, false
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return models.DiscoveredSwitcher{}, false
			}
			switch ev.Kind {
			case device.EventConnected:
				return p.describe(addr, conn.State().Info)
			case device.EventError, device.EventDisconnected:
				return models.DiscoveredSwitcher{}, false
			}
		case <-timer.C:
			return models.DiscoveredSwitcher{}, false
		case <-ctx.Done():
			return models.DiscoveredSwitcher{}, false
		}
	}
}

func (p *SwitcherProber) describe(addr string, id device.Identity) (models.DiscoveredSwitcher, bool) {
	fp, err := Fingerprint(id)
	if err != nil {
		p.logger.Warn("cannot fingerprint switcher", zap.String("ip", addr), zap.Error(err))
		return models.DiscoveredSwitcher{}, false
	}
	model := p.catalog.Model(id.Model)
	p.logger.Info("switcher found",
		zap.String("ip", addr),
		zap.String("model", model.Name),
		zap.String("name", id.DisplayName),
	)
	return models.DiscoveredSwitcher{
		IP:          addr,
		ModelID:     id.Model,
		Model:       model.Name,
		Name:        id.DisplayName,
		Fingerprint: fp,
	}, true
}
