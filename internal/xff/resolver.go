// Package xff resolves forwarded-address chains into a best guess of the
// originating client address, annotated with whether every hop walked was a
// site-operated proxy.
package xff

import (
	"net/netip"
	"strings"

	"github.com/cdtdelta/checkuser/internal/ipaddr"
)

// DefaultMaxHops bounds how many entries of a chain are considered. The
// header is attacker-controlled.
const DefaultMaxHops = 32

// Classifier answers the two address questions the resolver needs.
type Classifier interface {
	IsSiteProxy(addr netip.Addr) bool
	IsPubliclyRoutable(addr netip.Addr) bool
}

// Result is the outcome of resolving one chain. Client is the zero Addr when
// no address could be determined.
type Result struct {
	Client     netip.Addr
	AllProxies bool
}

// HasClient reports whether a client address was determined.
func (r Result) HasClient() bool {
	return r.Client.IsValid()
}

// ClientString returns the client address as text, or "" when absent.
func (r Result) ClientString() string {
	if !r.Client.IsValid() {
		return ""
	}
	return r.Client.String()
}

// Resolver walks forwarded-address chains.
type Resolver struct {
	Classifier Classifier
	// AcceptPrivate lets trust advance onto non-routable addresses.
	AcceptPrivate bool
	// MaxHops caps the entries considered; zero means DefaultMaxHops.
	MaxHops int
}

// Resolve applies r to header.
func (r *Resolver) Resolve(header string) Result {
	return resolve(header, r.Classifier, r.AcceptPrivate, r.maxHops())
}

func (r *Resolver) maxHops() int {
	if r.MaxHops > 0 {
		return r.MaxHops
	}
	return DefaultMaxHops
}

// ResolveClientFromForwardedChain resolves header with the default hop cap.
//
// The comma-separated entries are reversed and walked from the first element
// of the reversed list. Trust advances from entry i to entry i+1 only when
// i+1 is a valid address that is publicly routable, or acceptPrivate is set,
// or entry i is a site proxy. AllProxies ends true only if every entry trust
// advanced through was a site proxy. The walk order is fixed: trust displays
// downstream depend on it.
func ResolveClientFromForwardedChain(header string, c Classifier, acceptPrivate bool) Result {
	return resolve(header, c, acceptPrivate, DefaultMaxHops)
}

func resolve(header string, c Classifier, acceptPrivate bool, maxHops int) Result {
	if strings.TrimSpace(header) == "" {
		return Result{}
	}

	chain := strings.Split(header, ",")
	if len(chain) > maxHops {
		// The reversed walk starts at the tail, so keep the tail.
		chain = chain[len(chain)-maxHops:]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	var (
		client     netip.Addr
		allProxies bool
	)
	for i := 0; i < len(chain); i++ {
		cur, ok := ipaddr.Canonicalize(chain[i])
		if !ok {
			break
		}
		curIsProxy := c.IsSiteProxy(cur)
		if !client.IsValid() {
			client = cur
			allProxies = curIsProxy
		}
		if i+1 >= len(chain) {
			break
		}
		next, ok := ipaddr.Canonicalize(chain[i+1])
		if !ok {
			break
		}
		if !c.IsPubliclyRoutable(next) && !acceptPrivate && !curIsProxy {
			break
		}
		client = next
		allProxies = allProxies && curIsProxy
	}

	return Result{Client: client, AllProxies: allProxies}
}
