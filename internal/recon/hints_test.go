package recon

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/huin/goupnp"
	"github.com/huin/goupnp/ssdp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMDNSHintsCollectsIPv4(t *testing.T) {
	h := NewMDNSHints("_blackmagic._tcp", time.Second, zap.NewNop())
	h.query = func(p *mdns.QueryParam) error {
		assert.Equal(t, "_blackmagic._tcp", p.Service)
		assert.True(t, p.DisableIPv6)
		p.Entries <- &mdns.ServiceEntry{Host: "atem-a.local.", AddrV4: net.ParseIP("10.0.0.9")}
		p.Entries <- &mdns.ServiceEntry{Host: "atem-b.local.", AddrV4: net.ParseIP("10.0.0.5")}
		p.Entries <- &mdns.ServiceEntry{Host: "atem-a.local.", AddrV4: net.ParseIP("10.0.0.9")}
		p.Entries <- &mdns.ServiceEntry{Host: "v6only.local."}
		return nil
	}

	assert.Equal(t, []string{"10.0.0.5", "10.0.0.9"}, h.Hints(context.Background()))
}

func TestMDNSHintsQueryError(t *testing.T) {
	h := NewMDNSHints("_blackmagic._tcp", time.Second, zap.NewNop())
	h.query = func(*mdns.QueryParam) error { return errors.New("no multicast interface") }

	assert.Empty(t, h.Hints(context.Background()))
}

func TestSSDPHintsUsesLocationHost(t *testing.T) {
	h := NewSSDPHints(time.Second, zap.NewNop())
	h.discover = func(_ context.Context, target string) ([]goupnp.MaybeRootDevice, error) {
		assert.Equal(t, ssdp.SSDPAll, target)
		return []goupnp.MaybeRootDevice{
			{USN: "uuid:cam-1", Location: &url.URL{Scheme: "http", Host: "10.0.0.21:80", Path: "/desc.xml"}},
			{USN: "uuid:cam-1::svc", Location: &url.URL{Scheme: "http", Host: "10.0.0.21:80"}},
			{USN: "uuid:cam-2", Location: &url.URL{Scheme: "http", Host: "10.0.0.20:49152"}, Err: errors.New("bad description")},
			{USN: "uuid:v6", Location: &url.URL{Scheme: "http", Host: "[fe80::1]:80"}},
			{USN: "uuid:static"},
		}, nil
	}

	assert.Equal(t, []string{"10.0.0.20", "10.0.0.21"}, h.Hints(context.Background()))
}

type staticHints struct {
	name  string
	addrs []string
}

func (s staticHints) Name() string { return s.name }

func (s staticHints) Hints(context.Context) []string { return s.addrs }

func TestCollectHintsUnion(t *testing.T) {
	got := collectHints(context.Background(), []HintSource{
		staticHints{"a", []string{"10.0.0.9", "10.0.0.5"}},
		staticHints{"b", []string{"10.0.0.5", "10.0.1.1"}},
	}, zap.NewNop())

	assert.Equal(t, []string{"10.0.0.5", "10.0.0.9", "10.0.1.1"}, got)
}

func TestMergeHints(t *testing.T) {
	merged, rest := mergeHints([]string{"10.0.0.7"}, []string{"10.0.0.5", "10.0.0.7", "10.0.1.1"}, "10.0.0")
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.7"}, merged)
	assert.Equal(t, []string{"10.0.1.1"}, rest)
}
