package recon

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"runtime"
	"slices"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/switchbridge/pkg/models"
)

// maxLivenessProbes bounds concurrent reachability probes: one per host of a /24.
const maxLivenessProbes = 254

// Pinger decides whether a host is reachable. Implementations never return
// errors: any failure means "not reachable".
type Pinger interface {
	Ping(ctx context.Context, addr string) bool
}

// ICMPPinger sends a single echo request via pro-bing.
type ICMPPinger struct {
	timeout time.Duration
	logger  *zap.Logger
	// denied is set once the missing socket permission has been reported.
	denied atomic.Bool
}

// NewICMPPinger returns an ICMP pinger with the given per-host timeout.
func NewICMPPinger(timeout time.Duration, logger *zap.Logger) *ICMPPinger {
	return &ICMPPinger{timeout: timeout, logger: logger}
}

// Ping sends one echo request and waits for the reply or the timeout.
func (p *ICMPPinger) Ping(ctx context.Context, addr string) bool {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		p.logger.Debug("icmp pinger setup failed", zap.String("ip", addr), zap.Error(err))
		return false
	}
	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			p.runFailed(addr, err)
			return false
		}
		return pinger.Statistics().PacketsRecv > 0
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return false
	}
}

// runFailed logs a failed echo. A permission error means no host will ever
// answer, so it is raised once at warn level.
func (p *ICMPPinger) runFailed(addr string, err error) {
	if !errors.Is(err, os.ErrPermission) {
		p.logger.Debug("icmp echo failed", zap.String("ip", addr), zap.Error(err))
		return
	}
	if p.denied.CompareAndSwap(false, true) {
		p.logger.Warn("icmp sockets not permitted, every host will look offline",
			zap.Error(err),
			zap.String("hint", "allow unprivileged ping via net.ipv4.ping_group_range or set plugins.recon.ping_method: tcp"),
		)
	}
}

// TCPPinger treats a host as reachable when any of its ports accepts or
// actively refuses a TCP connection. It works without raw socket rights.
type TCPPinger struct {
	ports   []int
	timeout time.Duration
}

// NewTCPPinger returns a TCP pinger dialing ports with the given timeout.
func NewTCPPinger(ports []int, timeout time.Duration) *TCPPinger {
	return &TCPPinger{ports: ports, timeout: timeout}
}

func (p *TCPPinger) Ping(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: p.timeout}
	for _, port := range p.ports {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err == nil {
			_ = conn.Close()
			return true
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// LivenessProber fans reachability probes out over a subnet.
type LivenessProber struct {
	pinger Pinger
	logger *zap.Logger
}

// NewLivenessProber returns a prober using pinger.
func NewLivenessProber(pinger Pinger, logger *zap.Logger) *LivenessProber {
	return &LivenessProber{pinger: pinger, logger: logger}
}

// ProbeAll probes every address concurrently and returns one result per
// address, in input order. It returns once every probe has resolved.
func (p *LivenessProber) ProbeAll(ctx context.Context, addrs []string) []models.ProbeResult {
	results := make([]models.ProbeResult, len(addrs))

	var g errgroup.Group
	g.SetLimit(maxLivenessProbes)
	for i, addr := range addrs {
		g.Go(func() error {
			results[i] = models.ProbeResult{
				Address:   addr,
				Reachable: p.pinger.Ping(ctx, addr),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ProbeSubnet returns the reachable hosts of a /24 prefix, sorted.
func (p *LivenessProber) ProbeSubnet(ctx context.Context, prefix string) []string {
	start := time.Now()
	results := p.ProbeAll(ctx, HostsInSubnet(prefix))

	var live []string
	for _, r := range results {
		if r.Reachable {
			live = append(live, r.Address)
		}
	}
	sortAddrs(live)

	p.logger.Debug("subnet liveness complete",
		zap.String("subnet", prefix),
		zap.Int("alive", len(live)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return live
}

// sortAddrs orders IPv4 addresses numerically. Unparseable entries sort
// last in string order.
func sortAddrs(addrs []string) {
	slices.SortFunc(addrs, compareAddrs)
}

func compareAddrs(a, b string) int {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return pa.Compare(pb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
