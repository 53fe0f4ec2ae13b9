// Package dns resolves the rendezvous host, falling back to public
// resolvers when the system resolver fails.
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// PublicServers are queried directly if a system lookup fails.
var PublicServers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

// LookupFunc resolves host to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver tries the system resolver first and then races public servers.
type Resolver struct {
	// System defaults to net.DefaultResolver.LookupHost.
	System LookupFunc

	// Fallback builds a lookup bound to one public server. Nil uses plain
	// DNS over port 53.
	Fallback func(server string) LookupFunc

	Servers []string

	SystemTimeout   time.Duration
	FallbackTimeout time.Duration

	Logger *slog.Logger
}

// NewResolver returns a Resolver with the default servers and timeouts.
func NewResolver() *Resolver {
	return &Resolver{
		Servers:         PublicServers,
		SystemTimeout:   time.Second,
		FallbackTimeout: 2 * time.Second,
	}
}

// Lookup resolves host to a single IP, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ip, err := r.systemLookup(ctx, host)
	if err == nil {
		return ip, nil
	}

	if r.Logger != nil {
		r.Logger.Debug("system DNS lookup failed, racing public resolvers", "host", host, "err", err)
	}
	return r.race(ctx, host)
}

// DialContext resolves the host part of addr with Lookup and dials it.
// It fits websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) systemLookup(ctx context.Context, host string) (string, error) {
	lookup := r.System
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout(r.SystemTimeout, time.Second))
	defer cancel()

	ips, err := lookup(ctx, host)
	if err != nil {
		return "", err
	}
	return pickIP(ips)
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	servers := r.Servers
	if len(servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no fallback servers", host)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout(r.FallbackTimeout, 2*time.Second))
	defer cancel()

	results := make(chan result, len(servers))
	for _, server := range servers {
		lookup := r.fallbackFor(server)
		go func() {
			ips, err := lookup(ctx, host)
			if err != nil {
				results <- result{err: err}
				return
			}
			ip, err := pickIP(ips)
			results <- result{ip: ip, err: err}
		}()
	}

	failures := 0
	for range servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup for %s timed out during public DNS race", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

func (r *Resolver) fallbackFor(server string) LookupFunc {
	if r.Fallback != nil {
		return r.Fallback(server)
	}
	res := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
	return res.LookupHost
}

func (r *Resolver) timeout(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// pickIP prefers the first IPv4 address.
func pickIP(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
