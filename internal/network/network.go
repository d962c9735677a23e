// Package network brings up the station's uplink and reports its address.
package network

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrNotConnected = errors.New("no usable network interface")

// Link joins a network and reports whether it is usable.
type Link interface {
	Connect(ssid, password string) error
	Connected() bool
	LocalIP() net.IP
}

// HostLink treats the host's existing interfaces as the uplink. The SSID and
// password are accepted for interface parity with radio links and only
// logged by the caller; association is the operating system's job.
type HostLink struct {
	// Interface restricts the lookup to a single named interface. Empty means
	// the first non-loopback interface that is up and has an IPv4 address.
	Interface string

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)

	ip net.IP
}

func NewHostLink(iface string) *HostLink {
	return &HostLink{
		Interface:  strings.TrimSpace(iface),
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Connect looks for a usable interface and records its IPv4 address.
func (l *HostLink) Connect(_, _ string) error {
	ifaces, err := l.interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if l.Interface != "" && iface.Name != l.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		// Loopback only counts when asked for by name.
		if iface.Flags&net.FlagLoopback != 0 && l.Interface == "" {
			continue
		}

		addrs, err := l.addrs(iface)
		if err != nil {
			return fmt.Errorf("addresses of %s: %w", iface.Name, err)
		}
		if ip := firstIPv4(addrs); ip != nil {
			l.ip = ip
			return nil
		}
	}

	l.ip = nil
	if l.Interface != "" {
		return fmt.Errorf("%w: %s", ErrNotConnected, l.Interface)
	}
	return ErrNotConnected
}

func (l *HostLink) Connected() bool {
	return l.ip != nil
}

func (l *HostLink) LocalIP() net.IP {
	return l.ip
}

func firstIPv4(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
