// Network collector. Gathers cumulative interface counters, addresses and
// TCP socket facts. Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// NetworkSample is the raw network probe output. Byte and packet counters
// are cumulative across all non-loopback interfaces.
type NetworkSample struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	Errors    uint64
	Drops     uint64

	InterfaceIPs   map[string][]string
	TCPActive      uint32
	TCPTimeWait    uint32
	ListeningPorts []uint16
}

// NetworkCollector collects network I/O and socket metrics.
type NetworkCollector struct {
	logger *zap.Logger
}

// NewNetworkCollector creates a new network collector.
func NewNetworkCollector(logger *zap.Logger) *NetworkCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *NetworkCollector) Name() string { return ProbeNetwork }

// Collect gathers counters and addresses. Interface counters are required;
// addresses and connections are best effort.
func (c *NetworkCollector) Collect(ctx context.Context) (interface{}, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("io counters: %w", err)
	}

	s := NetworkSample{InterfaceIPs: map[string][]string{}, ListeningPorts: []uint16{}}

	loopback := map[string]bool{}
	if ifaces, err := net.InterfacesWithContext(ctx); err == nil {
		for _, iface := range ifaces {
			if isLoopback(iface.Flags) {
				loopback[iface.Name] = true
			}
			addrs := make([]string, 0, len(iface.Addrs))
			for _, a := range iface.Addrs {
				addrs = append(addrs, a.Addr)
			}
			if ips := normalizeIPs(addrs); len(ips) > 0 {
				s.InterfaceIPs[iface.Name] = ips
			}
		}
	} else {
		c.logger.Debug("Interface list unavailable", zap.Error(err))
	}

	sumCounters(&s, counters, loopback)

	if conns, err := net.ConnectionsWithContext(ctx, "tcp"); err == nil {
		countConnections(&s, conns)
	} else {
		c.logger.Debug("TCP connection table unavailable", zap.Error(err))
	}

	return s, nil
}

// IsAvailable returns true because network metrics are available on all platforms.
func (c *NetworkCollector) IsAvailable() bool { return true }

func isLoopback(flags []string) bool {
	for _, f := range flags {
		if f == "loopback" {
			return true
		}
	}
	return false
}

// sumCounters adds per-interface counters into the sample, skipping loopback.
func sumCounters(s *NetworkSample, counters []net.IOCountersStat, loopback map[string]bool) {
	for _, c := range counters {
		if loopback[c.Name] || c.Name == "lo" {
			continue
		}
		s.RxBytes += c.BytesRecv
		s.TxBytes += c.BytesSent
		s.RxPackets += c.PacketsRecv
		s.TxPackets += c.PacketsSent
		s.Errors += c.Errin + c.Errout
		s.Drops += c.Dropin + c.Dropout
	}
}

// countConnections tallies TCP states and collects listening ports.
func countConnections(s *NetworkSample, conns []net.ConnectionStat) {
	ports := map[uint16]struct{}{}
	for _, conn := range conns {
		switch conn.Status {
		case "ESTABLISHED":
			s.TCPActive++
		case "TIME_WAIT":
			s.TCPTimeWait++
		case "LISTEN":
			ports[uint16(conn.Laddr.Port)] = struct{}{}
		}
	}
	s.ListeningPorts = make([]uint16, 0, len(ports))
	for p := range ports {
		s.ListeningPorts = append(s.ListeningPorts, p)
	}
	sort.Slice(s.ListeningPorts, func(i, j int) bool { return s.ListeningPorts[i] < s.ListeningPorts[j] })
}

// normalizeIPs strips prefix lengths and zones, then sorts and de-duplicates.
func normalizeIPs(addrs []string) []string {
	set := map[string]struct{}{}
	for _, a := range addrs {
		host, _, _ := strings.Cut(a, "/")
		ip, err := netip.ParseAddr(host)
		if err != nil {
			continue
		}
		set[ip.WithZone("").String()] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for ip := range set {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}
