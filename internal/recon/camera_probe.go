package recon

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/switchbridge/pkg/models"
)

const cameraUserAgent = "PTZ-Scanner/1.0"

// CameraProber confirms PTZ cameras either by a TCP connect to the control
// port or by an HTTP GET that must answer 401.
type CameraProber struct {
	mode        string
	port        int
	httpPort    int
	timeout     time.Duration
	concurrency int
	client      *http.Client
	logger      *zap.Logger
}

// NewCameraProber builds a prober from the recon config.
func NewCameraProber(cfg Config, logger *zap.Logger) *CameraProber {
	return &CameraProber{
		mode:        cfg.CameraMode,
		port:        cfg.CameraPort,
		httpPort:    cfg.CameraHTTPPort,
		timeout:     cfg.CameraTimeout,
		concurrency: max(cfg.CameraConcurrency, 1),
		client: &http.Client{
			Timeout: cfg.CameraHTTPTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Confirm probes addrs concurrently and returns the cameras in input order.
func (p *CameraProber) Confirm(ctx context.Context, addrs []string) []models.DiscoveredCamera {
	hits := make([]bool, len(addrs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			hits[i] = p.probe(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	var found []models.DiscoveredCamera
	for i, hit := range hits {
		if !hit {
			continue
		}
		found = append(found, models.DiscoveredCamera{IP: addrs[i]})
		p.logger.Info("camera found", zap.String("ip", addrs[i]), zap.String("mode", p.mode))
	}
	return found
}

func (p *CameraProber) probe(ctx context.Context, addr string) bool {
	if p.mode == CameraModeHTTP {
		return p.probeHTTP(ctx, addr)
	}
	return p.probeTCP(ctx, addr)
}

func (p *CameraProber) probeTCP(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(p.port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// probeHTTP treats only 401 as positive: it separates an authenticated
// camera endpoint from an arbitrary web server.
func (p *CameraProber) probeHTTP(ctx context.Context, addr string) bool {
	url := "http://" + net.JoinHostPort(addr, strconv.Itoa(p.httpPort)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", cameraUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusUnauthorized
}
