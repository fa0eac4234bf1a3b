package recon

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/pkg/models"
)

// Fingerprint serializes an identity snapshot into the dedup key of a
// physical unit. Field order follows the struct, so equal identities always
// produce equal keys.
func Fingerprint(id device.Identity) (string, error) {
	b, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("fingerprint identity: %w", err)
	}
	return string(b), nil
}

// Deduplicator collapses switchers that answer on several addresses. One
// instance covers one scan.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Add records fp and reports whether it was new.
func (d *Deduplicator) Add(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fp]; ok {
		return false
	}
	d.seen[fp] = struct{}{}
	return true
}

// Filter keeps the first candidate of every fingerprint.
func (d *Deduplicator) Filter(cands []models.DiscoveredSwitcher) []models.DiscoveredSwitcher {
	var kept []models.DiscoveredSwitcher
	for _, c := range cands {
		if d.Add(c.Fingerprint) {
			kept = append(kept, c)
		}
	}
	return kept
}
