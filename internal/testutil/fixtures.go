package testutil

import (
	"github.com/HerbHall/switchbridge/pkg/models"
)

// NewDiscoveredSwitcher returns a DiscoveredSwitcher with sensible defaults,
// suitable for test fixtures. Override individual fields with options.
func NewDiscoveredSwitcher(opts ...func(*models.DiscoveredSwitcher)) models.DiscoveredSwitcher {
	d := models.DiscoveredSwitcher{
		IP:          "192.168.1.240",
		ModelID:     12,
		Model:       "ATEM Mini Pro",
		Name:        "test-switcher",
		Fingerprint: `{"model":12,"displayName":"test-switcher"}`,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithIP sets the switcher's address.
func WithIP(ip string) func(*models.DiscoveredSwitcher) {
	return func(d *models.DiscoveredSwitcher) { d.IP = ip }
}

// WithName sets the switcher's display name.
func WithName(name string) func(*models.DiscoveredSwitcher) {
	return func(d *models.DiscoveredSwitcher) { d.Name = name }
}

// WithModel sets the switcher's model id and name.
func WithModel(id int, name string) func(*models.DiscoveredSwitcher) {
	return func(d *models.DiscoveredSwitcher) {
		d.ModelID = id
		d.Model = name
	}
}

// NewDiscoveredCameras returns one camera per address.
func NewDiscoveredCameras(ips ...string) []models.DiscoveredCamera {
	out := make([]models.DiscoveredCamera, 0, len(ips))
	for _, ip := range ips {
		out = append(out, models.DiscoveredCamera{IP: ip})
	}
	return out
}

// WithFingerprint sets the dedup key.
func WithFingerprint(fp string) func(*models.DiscoveredSwitcher) {
	return func(d *models.DiscoveredSwitcher) { d.Fingerprint = fp }
}
