package ratelimit

import (
	"fmt"
	"net/netip"
	"strings"
)

// ClientIPResolver determines the effective client IP of a request.
// X-Forwarded-For is honored only when the direct peer is a trusted
// proxy; otherwise the header is attacker-controlled and ignored.
//
// Resolve is total: it never fails and never returns an empty string for
// a non-empty remote address.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver parses the trusted proxy CIDRs.
func NewClientIPResolver(trustedCIDRs []string) (*ClientIPResolver, error) {
	trusted := make([]netip.Prefix, 0, len(trustedCIDRs))
	for _, c := range trustedCIDRs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", c, err)
		}
		trusted = append(trusted, p)
	}
	return &ClientIPResolver{trusted: trusted}, nil
}

// Resolve returns the effective client IP. remoteAddr may carry a port;
// forwardedFor is the raw X-Forwarded-For header value.
func (r *ClientIPResolver) Resolve(remoteAddr, forwardedFor string) string {
	peer := stripPort(remoteAddr)

	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return peer
	}
	if !r.isTrusted(addr) {
		return peer
	}

	// Leftmost X-Forwarded-For entry is the original client as reported
	// by the first proxy.
	first, _, _ := strings.Cut(forwardedFor, ",")
	first = strings.TrimSpace(first)
	if _, err := netip.ParseAddr(first); err == nil {
		return first
	}
	return peer
}

func (r *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

func stripPort(remoteAddr string) string {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	return remoteAddr
}
