package xff

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/cdtdelta/checkuser/internal/ipaddr"
)

// ProxyList classifies addresses against a fixed set of site-operated proxy
// ranges. Routability comes from ipaddr.
type ProxyList struct {
	prefixes []netip.Prefix
}

// NewProxyList builds a ProxyList from CIDR ranges or single addresses.
func NewProxyList(entries []string) (*ProxyList, error) {
	pl := &ProxyList{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			addr, ok := ipaddr.Canonicalize(e)
			if !ok {
				return nil, fmt.Errorf("invalid proxy address: %q", e)
			}
			pl.prefixes = append(pl.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(e)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy range %q: %w", e, err)
		}
		pl.prefixes = append(pl.prefixes, p.Masked())
	}
	return pl, nil
}

// MustProxyList is NewProxyList for static configuration in tests and setup
// code. It panics on an invalid entry.
func MustProxyList(entries ...string) *ProxyList {
	pl, err := NewProxyList(entries)
	if err != nil {
		panic(err)
	}
	return pl
}

// IsSiteProxy reports whether addr falls inside a configured proxy range.
func (pl *ProxyList) IsSiteProxy(addr netip.Addr) bool {
	if pl == nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range pl.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPubliclyRoutable delegates to ipaddr.IsPubliclyRoutable.
func (pl *ProxyList) IsPubliclyRoutable(addr netip.Addr) bool {
	return ipaddr.IsPubliclyRoutable(addr)
}

// Len returns the number of configured ranges.
func (pl *ProxyList) Len() int {
	if pl == nil {
		return 0
	}
	return len(pl.prefixes)
}
