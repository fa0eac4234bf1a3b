package recon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/huin/goupnp"
	"github.com/huin/goupnp/ssdp"
	"go.uber.org/zap"
)

// HintSource yields candidate addresses learned from service announcements.
// Hinted addresses skip the liveness pass but are still confirmed by the
// protocol prober.
type HintSource interface {
	Name() string
	Hints(ctx context.Context) []string
}

// MDNSHints browses one mDNS service type.
type MDNSHints struct {
	service string
	timeout time.Duration
	logger  *zap.Logger
	query   func(*mdns.QueryParam) error
}

// NewMDNSHints returns a source browsing service (e.g. "_blackmagic._tcp").
func NewMDNSHints(service string, timeout time.Duration, logger *zap.Logger) *MDNSHints {
	return &MDNSHints{
		service: service,
		timeout: timeout,
		logger:  logger,
		query:   mdns.Query,
	}
}

func (h *MDNSHints) Name() string { return "mdns" }

// Hints runs one query and returns the IPv4 addresses that answered.
func (h *MDNSHints) Hints(ctx context.Context) []string {
	if ctx.Err() != nil {
		return nil
	}
	entries := make(chan *mdns.ServiceEntry, 16)

	var (
		addrs []string
		seen  = make(map[string]struct{})
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			if entry == nil || entry.AddrV4 == nil {
				continue
			}
			ip := entry.AddrV4.String()
			if _, dup := seen[ip]; dup {
				continue
			}
			seen[ip] = struct{}{}
			addrs = append(addrs, ip)
			h.logger.Debug("mDNS hint",
				zap.String("ip", ip),
				zap.String("host", entry.Host),
				zap.String("service", h.service),
			)
		}
	}()

	params := mdns.DefaultParams(h.service)
	params.Timeout = h.timeout
	params.Entries = entries
	params.DisableIPv6 = true

	if err := h.query(params); err != nil {
		h.logger.Debug("mDNS query failed", zap.String("service", h.service), zap.Error(err))
	}
	close(entries)
	wg.Wait()

	sortAddrs(addrs)
	return addrs
}

// SSDPHints runs an ssdp:all search and returns the responders' addresses.
type SSDPHints struct {
	timeout  time.Duration
	logger   *zap.Logger
	discover func(ctx context.Context, target string) ([]goupnp.MaybeRootDevice, error)
}

// NewSSDPHints returns a source that searches for up to timeout.
func NewSSDPHints(timeout time.Duration, logger *zap.Logger) *SSDPHints {
	return &SSDPHints{
		timeout:  timeout,
		logger:   logger,
		discover: goupnp.DiscoverDevicesCtx,
	}
}

func (h *SSDPHints) Name() string { return "ssdp" }

func (h *SSDPHints) Hints(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	devices, err := h.discover(ctx, ssdp.SSDPAll)
	if err != nil {
		h.logger.Debug("SSDP search failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]struct{})
	var addrs []string
	for _, d := range devices {
		if d.Location == nil {
			continue
		}
		ip := net.ParseIP(d.Location.Hostname())
		if ip == nil || ip.To4() == nil {
			continue
		}
		s := ip.To4().String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		addrs = append(addrs, s)
		h.logger.Debug("SSDP hint", zap.String("ip", s), zap.String("usn", d.USN))
	}
	sortAddrs(addrs)
	return addrs
}

// collectHints queries every source and returns the union.
func collectHints(ctx context.Context, sources []HintSource, logger *zap.Logger) []string {
	seen := make(map[string]struct{})
	var all []string
	for _, src := range sources {
		hints := src.Hints(ctx)
		logger.Debug("hints collected", zap.String("source", src.Name()), zap.Int("count", len(hints)))
		for _, h := range hints {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			all = append(all, h)
		}
	}
	sortAddrs(all)
	return all
}
