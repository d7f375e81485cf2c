// Package target parses investigation targets: account names, single
// addresses and CIDR ranges, each optionally matched against the forwarded
// chain instead of the connecting address.
package target

import (
	"net/netip"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cdtdelta/checkuser/internal/ipaddr"
	"github.com/cdtdelta/checkuser/internal/model"
	"github.com/cdtdelta/checkuser/internal/query"
)

// Kind identifies what a target names.
type Kind int

const (
	User Kind = iota + 1
	IP
	Range
)

func (k Kind) String() string {
	switch k {
	case User:
		return "user"
	case IP:
		return "ip"
	case Range:
		return "range"
	default:
		return "unknown"
	}
}

const (
	xffSuffix     = "/xff"
	maxNameLength = 255
	// invalidNameChars may not appear in account names.
	invalidNameChars = "#<>[]|{}/:@"
)

// Target is one parsed investigation target.
type Target struct {
	Kind Kind
	// XFF matches the forwarded chain rather than the connecting address.
	XFF    bool
	Name   string
	Addr   netip.Addr
	Prefix netip.Prefix
	// ActorID is the resolved id of a User target, or zero.
	ActorID int64
}

// Parse parses a single target. It returns false for anything that is not a
// valid account name, address or range within the allowed widths.
func Parse(raw string) (Target, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}, false
	}

	xff := false
	if len(s) > len(xffSuffix) && strings.EqualFold(s[len(s)-len(xffSuffix):], xffSuffix) {
		s = strings.TrimSpace(s[:len(s)-len(xffSuffix)])
		xff = true
	}

	if addr, ok := ipaddr.Canonicalize(s); ok {
		return Target{Kind: IP, XFF: xff, Addr: addr}, true
	}
	if strings.Contains(s, "/") {
		p, ok := ipaddr.ParseRange(s)
		if !ok {
			return Target{}, false
		}
		if p.IsSingleIP() {
			return Target{Kind: IP, XFF: xff, Addr: p.Addr()}, true
		}
		return Target{Kind: Range, XFF: xff, Prefix: p}, true
	}
	if xff || looksLikeAddress(s) {
		return Target{}, false
	}

	name, ok := normalizeName(s)
	if !ok {
		return Target{}, false
	}
	return Target{Kind: User, Name: name}, true
}

// ParseAll parses raw targets in order, dropping duplicates. Targets that do
// not parse are returned separately, trimmed.
func ParseAll(raw []string) (targets []Target, invalid []string) {
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		t, ok := Parse(r)
		if !ok {
			if s := strings.TrimSpace(r); s != "" {
				invalid = append(invalid, s)
			}
			continue
		}
		key := t.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		targets = append(targets, t)
	}
	return targets, invalid
}

// looksLikeAddress reports whether s is built from address characters only,
// so a failed address parse means a malformed address, not an account name.
func looksLikeAddress(s string) bool {
	if !strings.ContainsAny(s, ".:") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// normalizeName applies account name rules: underscores read as spaces,
// runs of spaces collapse, and the first letter is upper case.
func normalizeName(s string) (string, bool) {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	if s == "" || len(s) > maxNameLength || strings.ContainsAny(s, invalidNameChars) {
		return "", false
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return "", false
	}
	return string(unicode.ToUpper(r)) + s[size:], true
}

// String returns the canonical text form, which round-trips through Parse.
func (t Target) String() string {
	var s string
	switch t.Kind {
	case User:
		return t.Name
	case IP:
		s = t.Addr.String()
	case Range:
		s = t.Prefix.String()
	}
	if t.XFF {
		s += xffSuffix
	}
	return s
}

// CheckType returns the check log type recorded for an investigation of t.
func (t Target) CheckType() string {
	switch {
	case t.Kind == User:
		return model.CheckUser
	case t.Kind == IP && t.XFF:
		return model.CheckIPXFF
	case t.Kind == IP:
		return model.CheckIP
	case t.Kind == Range && t.XFF:
		return model.CheckRangeXFF
	default:
		return model.CheckRange
	}
}

// Column returns the logical field t is matched against.
func (t Target) Column() string {
	switch {
	case t.Kind == User:
		return "actor_name"
	case t.XFF:
		return "xff_hex"
	default:
		return "ip_hex"
	}
}

// HexRange returns the inclusive hex bounds of an address target. Both are
// empty for account names.
func (t Target) HexRange() (start, end string) {
	switch t.Kind {
	case IP:
		h := ipaddr.Hex(t.Addr)
		return h, h
	case Range:
		return ipaddr.RangeHex(t.Prefix)
	default:
		return "", ""
	}
}

// Predicate returns the row filter selecting events that match t.
func (t Target) Predicate() *query.Predicate {
	switch t.Kind {
	case User:
		if t.ActorID != 0 {
			return query.Simple("actor_id", query.Equal, t.ActorID)
		}
		return query.Simple("actor_name", query.Equal, t.Name)
	case IP:
		return query.Simple(t.Column(), query.Equal, ipaddr.Hex(t.Addr))
	case Range:
		start, end := t.HexRange()
		return query.Between(t.Column(), start, end)
	default:
		return nil
	}
}

// IndexHint returns the index best suited to filtering on t. A User target
// needs its ActorID resolved for the actor index to apply.
func (t Target) IndexHint() string {
	switch {
	case t.Kind == User && t.ActorID == 0:
		return ""
	case t.Kind == User:
		return query.HintActorTime
	case t.XFF:
		return query.HintXFFHexTime
	default:
		return query.HintIPHexTime
	}
}

// CommonIndexHint returns the index hint shared by every target, or "" when
// the targets would be served by different indexes.
func CommonIndexHint(targets []Target) string {
	hint := ""
	for i, t := range targets {
		if i == 0 {
			hint = t.IndexHint()
			continue
		}
		if t.IndexHint() != hint {
			return ""
		}
	}
	return hint
}

// Strings returns the canonical form of each target.
func Strings(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.String()
	}
	return out
}
