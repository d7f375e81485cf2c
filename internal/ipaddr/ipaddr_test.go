package ipaddr

import (
	"net/netip"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" 203.0.113.9 ", "203.0.113.9", true},
		{"::ffff:192.0.2.1", "192.0.2.1", true},
		{"2001:DB8::1", "2001:db8::1", true},
		{"fe80::1%eth0", "", false},
		{"not-an-ip", "", false},
		{"", "", false},
		{"203.0.113.0/24", "", false},
	}
	for _, tt := range tests {
		got, ok := Canonicalize(tt.in)
		if ok != tt.ok {
			t.Errorf("Canonicalize(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("Canonicalize(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestHex(t *testing.T) {
	if got := HexString("192.168.0.1"); got != "C0A80001" {
		t.Errorf("expected C0A80001, got %s", got)
	}
	if got := HexString("2001:db8::1"); got != "v6-20010DB8000000000000000000000001" {
		t.Errorf("unexpected IPv6 hex: %s", got)
	}
	if got := HexString("garbage"); got != "" {
		t.Errorf("expected empty hex for garbage, got %s", got)
	}
}

func TestParseRangeLimits(t *testing.T) {
	if _, ok := ParseRange("10.0.0.0/8"); ok {
		t.Error("expected /8 IPv4 range to be rejected")
	}
	if _, ok := ParseRange("2001:db8::/16"); ok {
		t.Error("expected /16 IPv6 range to be rejected")
	}
	p, ok := ParseRange("203.0.113.77/24")
	if !ok {
		t.Fatal("expected /24 range to parse")
	}
	if p.String() != "203.0.113.0/24" {
		t.Errorf("expected masked range, got %s", p)
	}
}

func TestRangeHex(t *testing.T) {
	p, _ := ParseRange("203.0.112.0/20")
	start, end := RangeHex(p)
	if start != "CB007000" || end != "CB007FFF" {
		t.Errorf("unexpected range hex %s-%s", start, end)
	}
	if inside := HexString("203.0.127.255"); inside < start || inside > end {
		t.Errorf("address %s outside range bounds %s-%s", inside, start, end)
	}

	p6, _ := ParseRange("2001:db8::/32")
	start, end = RangeHex(p6)
	if start != "v6-20010DB8000000000000000000000000" {
		t.Errorf("unexpected v6 start %s", start)
	}
	if end != "v6-20010DB8FFFFFFFFFFFFFFFFFFFFFFFF" {
		t.Errorf("unexpected v6 end %s", end)
	}
}

func TestIsPubliclyRoutable(t *testing.T) {
	cases := map[string]bool{
		"203.0.113.9":  true,
		"198.51.100.2": true,
		"10.0.0.5":     false,
		"192.168.1.1":  false,
		"127.0.0.1":    false,
		"169.254.1.1":  false,
		"0.0.0.0":      false,
		"fd00::1":      false,
		"2001:db8::1":  true,
	}
	for in, want := range cases {
		addr := netip.MustParseAddr(in)
		if got := IsPubliclyRoutable(addr); got != want {
			t.Errorf("IsPubliclyRoutable(%s) = %v, want %v", in, got, want)
		}
	}
	if IsPubliclyRoutable(netip.Addr{}) {
		t.Error("expected zero address to be non-routable")
	}
}
