package config

import (
	"net"
	"strings"
)

// Carrier-grade NAT range used by WARP, Tailscale and mobile carriers.
// Direct paths through it rarely work, so such hosts prefer TURN.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNameHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// RelayOnly reports whether ICE should be restricted to TURN relays. It
// needs a TURN server, and either an explicit request or a tunnel-like
// local interface.
func (c *Config) RelayOnly() bool {
	if c.TURNServer == "" {
		return false
	}
	return c.ForceRelay || behindTunnel()
}

func behindTunnel() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		var ips []net.IP
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					ips = append(ips, v.IP)
				case *net.IPAddr:
					ips = append(ips, v.IP)
				}
			}
		}

		if tunnelLike(iface.Name, ips) {
			return true
		}
	}

	return false
}

// tunnelLike classifies one interface by name and addresses.
func tunnelLike(name string, ips []net.IP) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	for _, ip := range ips {
		if cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
