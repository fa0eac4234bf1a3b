package recon

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// reservedPrefixes are never scanned. Link-local is handled separately.
var reservedPrefixes = []string{"0.", "127.", "224.", "255."}

const linkLocalPrefix = "169.254."

// IsReserved reports whether a three-octet prefix must not be scanned.
func IsReserved(prefix string, skipLinkLocal bool) bool {
	p := prefix + "."
	for _, r := range reservedPrefixes {
		if strings.HasPrefix(p, r) {
			return true
		}
	}
	return skipLinkLocal && strings.HasPrefix(p, linkLocalPrefix)
}

var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})\b`)

// ParseRouteOutput extracts /24 prefixes from `netstat -rn` output, using
// the first dotted quad on each line (the destination column).
func ParseRouteOutput(out []byte) []string {
	seen := make(map[string]struct{})
	var prefixes []string

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := ipv4Pattern.FindStringSubmatch(sc.Text())
		if m == nil || !validOctets(m[1:]) {
			continue
		}
		prefix := strings.Join(m[1:4], ".")
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}

func validOctets(octets []string) bool {
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// prefixOf returns the /24 prefix of an IPv4 address, or "" for IPv6.
func prefixOf(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return strconv.Itoa(int(v4[0])) + "." + strconv.Itoa(int(v4[1])) + "." + strconv.Itoa(int(v4[2]))
}

// interfaceIPs returns the addresses of every up, non-loopback interface.
func interfaceIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok {
				ips = append(ips, ipNet.IP)
			}
		}
	}
	return ips, nil
}

// SubnetEnumerator derives the /24 prefixes worth scanning from the local
// interfaces and the routing table.
type SubnetEnumerator struct {
	logger        *zap.Logger
	skipLinkLocal bool
	run           CommandRunner
	addrs         func() ([]net.IP, error)
}

// NewSubnetEnumerator returns an enumerator backed by net.Interfaces and
// `netstat -rn`.
func NewSubnetEnumerator(logger *zap.Logger, skipLinkLocal bool) *SubnetEnumerator {
	return &SubnetEnumerator{
		logger:        logger,
		skipLinkLocal: skipLinkLocal,
		run:           execCommand,
		addrs:         interfaceIPs,
	}
}

// Enumerate returns the sorted, de-duplicated, non-reserved prefixes. It
// never fails: an unreadable routing table or interface list only shrinks
// the result.
func (e *SubnetEnumerator) Enumerate(ctx context.Context) []string {
	set := make(map[string]struct{})
	add := func(prefix, source string) {
		if prefix == "" {
			return
		}
		if IsReserved(prefix, e.skipLinkLocal) {
			e.logger.Debug("skipping reserved subnet",
				zap.String("subnet", prefix),
				zap.String("source", source),
			)
			return
		}
		set[prefix] = struct{}{}
	}

	ips, err := e.addrs()
	if err != nil {
		e.logger.Warn("failed to list interface addresses", zap.Error(err))
	}
	for _, ip := range ips {
		if ip.IsLoopback() {
			continue
		}
		add(prefixOf(ip), "interface")
	}

	out, err := e.run(ctx, "netstat", "-rn")
	if err != nil {
		e.logger.Warn("routing table unavailable, using interface subnets only", zap.Error(err))
	} else {
		for _, prefix := range ParseRouteOutput(out) {
			add(prefix, "route")
		}
	}

	subnets := make([]string, 0, len(set))
	for prefix := range set {
		subnets = append(subnets, prefix)
	}
	sort.Strings(subnets)
	return subnets
}

// HostsInSubnet returns the 254 host addresses .1 through .254 of prefix.
func HostsInSubnet(prefix string) []string {
	hosts := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		hosts = append(hosts, prefix+"."+strconv.Itoa(i))
	}
	return hosts
}

// InSubnet reports whether addr lies in the /24 prefix.
func InSubnet(addr, prefix string) bool {
	return strings.HasPrefix(addr, prefix+".") && strings.Count(addr, ".") == 3
}
