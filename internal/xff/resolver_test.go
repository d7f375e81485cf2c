package xff

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWorkedExample(t *testing.T) {
	proxies := MustProxyList("10.0.0.5")

	res := ResolveClientFromForwardedChain("198.51.100.2, 203.0.113.9, 10.0.0.5", proxies, false)

	require.True(t, res.HasClient())
	assert.Equal(t, "198.51.100.2", res.ClientString())
	assert.False(t, res.AllProxies)
}

func TestResolveEmptyHeader(t *testing.T) {
	for _, h := range []string{"", "   "} {
		res := ResolveClientFromForwardedChain(h, MustProxyList(), false)
		assert.False(t, res.HasClient(), "header %q", h)
		assert.False(t, res.AllProxies, "header %q", h)
		assert.Equal(t, "", res.ClientString())
	}
}

func TestResolveSingleEntry(t *testing.T) {
	res := ResolveClientFromForwardedChain("203.0.113.9", MustProxyList(), false)
	assert.Equal(t, "203.0.113.9", res.ClientString())
	assert.False(t, res.AllProxies)

	res = ResolveClientFromForwardedChain("10.0.0.5", MustProxyList("10.0.0.0/24"), false)
	assert.Equal(t, "10.0.0.5", res.ClientString())
	assert.True(t, res.AllProxies)
}

func TestResolveStopsOnInvalidEntry(t *testing.T) {
	// Reversed: [10.0.0.5, garbage, 198.51.100.2]; the walk cannot pass garbage.
	res := ResolveClientFromForwardedChain("198.51.100.2, garbage, 10.0.0.5", MustProxyList("10.0.0.5"), false)
	assert.Equal(t, "10.0.0.5", res.ClientString())
	assert.True(t, res.AllProxies)

	res = ResolveClientFromForwardedChain("203.0.113.9, unknown", MustProxyList(), false)
	assert.False(t, res.HasClient())
	assert.False(t, res.AllProxies)
}

func TestResolvePrivateNextHop(t *testing.T) {
	// Reversed: [203.0.113.9, 192.168.1.10]. 203.0.113.9 is not a proxy and the
	// next hop is private, so trust stops at the first element.
	header := "192.168.1.10, 203.0.113.9"
	res := ResolveClientFromForwardedChain(header, MustProxyList(), false)
	assert.Equal(t, "203.0.113.9", res.ClientString())

	res = ResolveClientFromForwardedChain(header, MustProxyList(), true)
	assert.Equal(t, "192.168.1.10", res.ClientString())
	assert.False(t, res.AllProxies)

	// A proxy vouches for a private next hop.
	res = ResolveClientFromForwardedChain(header, MustProxyList("203.0.113.0/24"), false)
	assert.Equal(t, "192.168.1.10", res.ClientString())
	assert.True(t, res.AllProxies)
}

func TestResolveCanonicalizes(t *testing.T) {
	// The only hop trust advanced through is the proxy.
	res := ResolveClientFromForwardedChain(" 2001:DB8::1 ,::ffff:10.0.0.5", MustProxyList("10.0.0.5"), false)
	assert.Equal(t, "2001:db8::1", res.ClientString())
	assert.True(t, res.AllProxies)
}

func TestResolveContainment(t *testing.T) {
	headers := []string{
		"198.51.100.2, 203.0.113.9, 10.0.0.5",
		"1.2.3.4,5.6.7.8,9.9.9.9,10.0.0.1",
		"fd00::1, 2001:db8::5, 10.0.0.5",
		"x, y, z",
		"203.0.113.1,,203.0.113.2",
	}
	classifiers := []*ProxyList{
		MustProxyList(),
		MustProxyList("10.0.0.0/8"),
		MustProxyList("0.0.0.0/0", "::/0"),
	}
	for _, h := range headers {
		tokens := make(map[string]bool)
		for _, tok := range strings.Split(h, ",") {
			if a, err := netip.ParseAddr(strings.TrimSpace(tok)); err == nil {
				tokens[a.Unmap().String()] = true
			}
		}
		for _, c := range classifiers {
			for _, acceptPrivate := range []bool{false, true} {
				res := ResolveClientFromForwardedChain(h, c, acceptPrivate)
				if res.HasClient() {
					assert.True(t, tokens[res.ClientString()], "header %q returned %s", h, res.ClientString())
				}
				again := ResolveClientFromForwardedChain(h, c, acceptPrivate)
				assert.Equal(t, res, again, "resolution must be deterministic")
			}
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	proxies := MustProxyList("10.0.0.0/8")
	tests := []struct {
		name          string
		header        string
		acceptPrivate bool
		wantClient    string
		wantProxies   bool
	}{
		{"empty", "", false, "", false},
		{"single public", "203.0.113.9", false, "203.0.113.9", false},
		{"through proxy", "198.51.100.2, 10.0.0.5", false, "198.51.100.2", true},
		{"private stops", "192.168.1.4, 203.0.113.9", false, "203.0.113.9", false},
		{"private accepted", "192.168.1.4, 203.0.113.9", true, "192.168.1.4", false},
		{"garbage tail", "198.51.100.2, junk", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{Classifier: proxies, AcceptPrivate: tt.acceptPrivate}
			first := r.Resolve(tt.header)
			assert.Equal(t, tt.wantClient, first.ClientString())
			assert.Equal(t, tt.wantProxies, first.AllProxies)
			for i := 0; i < 10; i++ {
				assert.Equal(t, first, r.Resolve(tt.header), "call %d", i+2)
				assert.Equal(t, first, ResolveClientFromForwardedChain(tt.header, proxies, tt.acceptPrivate))
			}
		})
	}
}

func TestResolveHopCap(t *testing.T) {
	parts := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		parts = append(parts, fmt.Sprintf("203.0.%d.%d", i/256, i%256+1))
	}
	header := strings.Join(parts, ", ")

	r := &Resolver{Classifier: MustProxyList(), MaxHops: 5}
	res := r.Resolve(header)

	// Only the last five entries are considered; all are public, so trust
	// walks to the earliest of them.
	assert.Equal(t, parts[95], res.ClientString())
	assert.False(t, res.AllProxies)
}

func TestProxyListInvalidEntry(t *testing.T) {
	_, err := NewProxyList([]string{"10.0.0.0/8", "nope"})
	assert.Error(t, err)

	pl, err := NewProxyList([]string{" 10.0.0.0/8 ", "", "2001:db8::1"})
	require.NoError(t, err)
	assert.Equal(t, 2, pl.Len())
	assert.True(t, pl.IsSiteProxy(netip.MustParseAddr("10.200.0.1")))
	assert.True(t, pl.IsSiteProxy(netip.MustParseAddr("2001:db8::1")))
	assert.False(t, pl.IsSiteProxy(netip.MustParseAddr("2001:db8::2")))
}
