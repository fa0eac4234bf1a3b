package recon

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/internal/device/devicesim"
)

// slowDriver answers connected after a delay and tracks how many
// connections are open at once.
type slowDriver struct {
	delay time.Duration

	mu   sync.Mutex
	open int
	peak int
}

func (d *slowDriver) factory() device.Switcher {
	return &slowSwitcher{
		d:      d,
		events: make(chan device.LifecycleEvent, 1),
		done:   make(chan struct{}),
	}
}

type slowSwitcher struct {
	d      *slowDriver
	events chan device.LifecycleEvent
	done   chan struct{}
	once   sync.Once
	addr   string
}

func (s *slowSwitcher) Connect(address string) error {
	s.addr = address
	s.d.mu.Lock()
	s.d.open++
	s.d.peak = max(s.d.peak, s.d.open)
	s.d.mu.Unlock()

	go func() {
		select {
		case <-time.After(s.d.delay):
			s.events <- device.LifecycleEvent{Kind: device.EventConnected}
		case <-s.done:
		}
	}()
	return nil
}

func (s *slowSwitcher) Disconnect() error {
	s.once.Do(func() {
		close(s.done)
		s.d.mu.Lock()
		s.d.open--
		s.d.mu.Unlock()
	})
	return nil
}

func (s *slowSwitcher) Events() <-chan device.LifecycleEvent { return s.events }

func (s *slowSwitcher) State() device.State {
	return device.State{Info: device.Identity{Model: 10, DisplayName: s.addr}}
}

func (s *slowSwitcher) ChangePreviewInput(int) error { return nil }

func (s *slowSwitcher) Cut() error { return nil }

func (s *slowSwitcher) AutoTransition() error { return nil }

func TestSwitcherProberConfirmsUnits(t *testing.T) {
	n := devicesim.NewNetwork().
		Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 12, DisplayName: "Studio"}}).
		Add("10.0.0.6", devicesim.Unit{Refuse: true})
	p := NewSwitcherProber(n.Factory(), device.DefaultCatalog(), 50*time.Millisecond, 5, zap.NewNop())

	found := p.Confirm(context.Background(), []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"})

	require.Len(t, found, 1)
	assert.Equal(t, "10.0.0.5", found[0].IP)
	assert.Equal(t, 12, found[0].ModelID)
	assert.Equal(t, "ATEM Mini Pro", found[0].Model)
	assert.Equal(t, "Studio", found[0].Name)
	assert.Equal(t, `{"model":12,"displayName":"Studio"}`, found[0].Fingerprint)

	// Every throwaway connection is torn down, including the silent one.
	require.Len(t, n.Switchers(), 3)
	for _, sw := range n.Switchers() {
		assert.True(t, sw.Closed(), "connection to %s left open", sw.Address())
	}
}

func TestSwitcherProberUnknownModel(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 77}})
	p := NewSwitcherProber(n.Factory(), device.DefaultCatalog(), 50*time.Millisecond, 5, zap.NewNop())

	found := p.Confirm(context.Background(), []string{"10.0.0.5"})
	require.Len(t, found, 1)
	assert.Equal(t, "Unknown (77)", found[0].Model)
}

func TestSwitcherProberTimeoutIsNegative(t *testing.T) {
	d := &slowDriver{delay: time.Second}
	p := NewSwitcherProber(d.factory, device.DefaultCatalog(), 20*time.Millisecond, 5, zap.NewNop())

	start := time.Now()
	found := p.Confirm(context.Background(), []string{"10.0.0.1", "10.0.0.2"})

	assert.Empty(t, found)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, d.open)
}

func TestSwitcherProberWorkerCeiling(t *testing.T) {
	d := &slowDriver{delay: 20 * time.Millisecond}
	p := NewSwitcherProber(d.factory, device.DefaultCatalog(), time.Second, 5, zap.NewNop())

	addrs := make([]string, 0, 30)
	for i := 1; i <= 30; i++ {
		addrs = append(addrs, "10.0.0."+strconv.Itoa(i))
	}
	found := p.Confirm(context.Background(), addrs)

	assert.Len(t, found, 30)
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.LessOrEqual(t, d.peak, 5)
	assert.Equal(t, 0, d.open)
}

func TestSwitcherProberEmpty(t *testing.T) {
	p := NewSwitcherProber(devicesim.NewNetwork().Factory(), device.DefaultCatalog(), time.Millisecond, 5, zap.NewNop())
	assert.Empty(t, p.Confirm(context.Background(), nil))
}
