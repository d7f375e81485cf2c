// Package ipaddr canonicalizes addresses and converts them to the fixed-width
// hex form used by the ip_hex and xff_hex columns.
package ipaddr

import (
	"encoding/hex"
	"net/netip"
	"strings"
)

// Widest ranges a reviewer may query. Wider ranges scan too many rows.
const (
	MinPrefixV4 = 16
	MinPrefixV6 = 19
)

// hexV6Prefix marks IPv6 hex values so they never collide with IPv4 ones.
const hexV6Prefix = "v6-"

// Canonicalize parses s as an IPv4 or IPv6 address. Surrounding whitespace is
// ignored, IPv4-mapped IPv6 addresses are unmapped and zoned addresses are
// rejected.
func Canonicalize(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// Hex returns the fixed-width uppercase hex form of addr: 8 digits for IPv4,
// "v6-" plus 32 digits for IPv6. Values of one family sort in address order.
func Hex(addr netip.Addr) string {
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return strings.ToUpper(hex.EncodeToString(b[:]))
	}
	b := addr.As16()
	return hexV6Prefix + strings.ToUpper(hex.EncodeToString(b[:]))
}

// HexString canonicalizes s and returns its hex form, or "" when s is not an
// address.
func HexString(s string) string {
	addr, ok := Canonicalize(s)
	if !ok {
		return ""
	}
	return Hex(addr)
}

// ParseRange parses a CIDR range and masks it to its network address. Ranges
// wider than MinPrefixV4/MinPrefixV6 are rejected.
func ParseRange(s string) (netip.Prefix, bool) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, false
	}
	if p.Addr().Zone() != "" {
		return netip.Prefix{}, false
	}
	if p.Addr().Is4In6() {
		bits := p.Bits() - 96
		if bits < 0 {
			return netip.Prefix{}, false
		}
		p = netip.PrefixFrom(p.Addr().Unmap(), bits)
	}
	if p.Addr().Is4() && p.Bits() < MinPrefixV4 {
		return netip.Prefix{}, false
	}
	if p.Addr().Is6() && p.Bits() < MinPrefixV6 {
		return netip.Prefix{}, false
	}
	return p.Masked(), true
}

// RangeHex returns the first and last address of p in hex form, suitable for
// a BETWEEN filter on a hex column.
func RangeHex(p netip.Prefix) (start, end string) {
	p = p.Masked()
	first := p.Addr()
	if first.Is4() {
		b := first.As4()
		setHostBits(b[:], p.Bits())
		return Hex(first), Hex(netip.AddrFrom4(b))
	}
	b := first.As16()
	setHostBits(b[:], p.Bits())
	return Hex(first), Hex(netip.AddrFrom16(b))
}

func setHostBits(b []byte, bits int) {
	for i := range b {
		switch {
		case bits >= 8:
			bits -= 8
		case bits > 0:
			b[i] |= 0xFF >> bits
			bits = 0
		default:
			b[i] = 0xFF
		}
	}
}

// IsPubliclyRoutable reports whether addr may belong to a client on the
// public internet. Private, loopback, link-local, multicast and unspecified
// addresses are not.
func IsPubliclyRoutable(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return false
	}
	return true
}
