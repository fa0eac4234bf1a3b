package recon

import (
	"fmt"
	"time"
)

// Ping methods.
const (
	PingICMP = "icmp"
	PingTCP  = "tcp"
)

// Camera confirmation modes.
const (
	CameraModeTCP  = "tcp"
	CameraModeHTTP = "http"
)

// Config holds the discovery settings, read from plugins.recon.
type Config struct {
	PingMethod  string        `mapstructure:"ping_method"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
	// PingPorts are dialed by the tcp ping method. A refused connection
	// still proves the host is up.
	PingPorts []int `mapstructure:"ping_ports"`

	SwitcherTimeout time.Duration `mapstructure:"switcher_timeout"`
	SwitcherWorkers int           `mapstructure:"switcher_workers"`
	Driver          string        `mapstructure:"driver"`

	CameraMode        string        `mapstructure:"camera_mode"`
	CameraPort        int           `mapstructure:"camera_port"`
	CameraHTTPPort    int           `mapstructure:"camera_http_port"`
	CameraTimeout     time.Duration `mapstructure:"camera_timeout"`
	CameraHTTPTimeout time.Duration `mapstructure:"camera_http_timeout"`
	CameraConcurrency int           `mapstructure:"camera_concurrency"`

	SkipLinkLocal bool   `mapstructure:"skip_link_local"`
	ArtifactDir   string `mapstructure:"artifact_dir"`

	MDNSHints   bool          `mapstructure:"mdns_hints"`
	MDNSService string        `mapstructure:"mdns_service"`
	MDNSTimeout time.Duration `mapstructure:"mdns_timeout"`
	SSDPHints   bool          `mapstructure:"ssdp_hints"`
	SSDPTimeout time.Duration `mapstructure:"ssdp_timeout"`

	// ScanRate is the sustained number of scan requests per second the HTTP
	// surface accepts.
	ScanRate  float64 `mapstructure:"scan_rate"`
	ScanBurst int     `mapstructure:"scan_burst"`
}

// DefaultConfig returns the discovery defaults.
func DefaultConfig() Config {
	return Config{
		PingMethod:        PingICMP,
		PingTimeout:       time.Second,
		PingPorts:         []int{80, 9910},
		SwitcherTimeout:   100 * time.Millisecond,
		SwitcherWorkers:   5,
		CameraMode:        CameraModeTCP,
		CameraPort:        5678,
		CameraHTTPPort:    80,
		CameraTimeout:     time.Second,
		CameraHTTPTimeout: 3 * time.Second,
		CameraConcurrency: 64,
		SkipLinkLocal:     true,
		ArtifactDir:       ".",
		MDNSService:       "_blackmagic._tcp",
		MDNSTimeout:       2 * time.Second,
		SSDPTimeout:       3 * time.Second,
		ScanRate:          0.5,
		ScanBurst:         2,
	}
}

// Validate rejects settings the probers cannot work with.
func (c Config) Validate() error {
	switch c.PingMethod {
	case PingICMP, PingTCP:
	default:
		return fmt.Errorf("recon: unknown ping_method %q", c.PingMethod)
	}
	switch c.CameraMode {
	case CameraModeTCP, CameraModeHTTP:
	default:
		return fmt.Errorf("recon: unknown camera_mode %q", c.CameraMode)
	}
	if c.SwitcherWorkers < 1 {
		return fmt.Errorf("recon: switcher_workers must be positive, got %d", c.SwitcherWorkers)
	}
	if c.CameraConcurrency < 1 {
		return fmt.Errorf("recon: camera_concurrency must be positive, got %d", c.CameraConcurrency)
	}
	if c.PingMethod == PingTCP && len(c.PingPorts) == 0 {
		return fmt.Errorf("recon: ping_method tcp needs at least one ping_ports entry")
	}
	return nil
}
