// Package optioncache defines the shape the database needs from the
// (externally owned) option-evaluation engine and packet dispatcher: a
// byte-string option cache and a packet that may be wrapped in nested
// DHCPv6 relay frames. The core consumes these as interfaces (§6) — it
// never parses wire format itself — but needs a concrete representation
// for fields like Lease.AgentOptions and Host.HostIDOption, and it
// expresses those in terms of github.com/krolaw/dhcp4's option map, the
// same type the teacher's protocol handler already builds responses
// from.
package optioncache

import (
	"bytes"

	d4 "github.com/krolaw/dhcp4"
)

// Options is a byte-string keyed option cache, concretely backed by the
// DHCPv4 option map type. DHCPv6 options reuse the same representation;
// only the option-code space differs, which this package does not police
// (that belongs to the option-evaluation engine, out of scope per §1).
type Options d4.Options

// Get returns the raw option value for code, if present.
func (o Options) Get(code d4.OptionCode) ([]byte, bool) {
	v, ok := o[code]
	return v, ok
}

// Clone returns a deep copy of the option set, for lease field-copy
// semantics in supersede_lease (§4.5 step 4).
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Packet is the minimal surface the host-identifier lookup (§4.2,
// find_hosts_by_option) needs from an inbound packet: its own option
// block, and — for DHCPv6 — the ability to descend one level into a
// containing relay-forward frame. A plain (non-relayed) packet's Relay
// returns ok=false.
type Packet interface {
	Options() Options
	Relay() (Packet, bool)
}

// MaxV6RelayHops bounds how far find_hosts_by_option may descend through
// nested relay-forward frames (§4.2).
const MaxV6RelayHops = 32

// DescendRelays walks exactly depth relay hops from p, returning the
// packet reached and whether the descent was able to go exactly that far.
// depth == 0 returns p itself unconditionally (the main option block).
func DescendRelays(p Packet, depth int) (Packet, bool) {
	if depth == 0 {
		return p, true
	}
	if depth < 0 || depth > MaxV6RelayHops {
		return nil, false
	}
	cur := p
	for i := 0; i < depth; i++ {
		next, ok := cur.Relay()
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Equal reports whether two option values are byte-for-byte identical,
// e.g. a host's recorded option value and a freshly evaluated one.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
