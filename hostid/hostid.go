// Package hostid implements the host-identifier registry of §4.2: an
// ordered slice of (option, relay_depth, values_hash) triples. New
// entries are appended when a host references an option/relay
// combination not already present. find_hosts_by_option (owned by the
// host package) walks this list in insertion order.
package hostid

import (
	d4 "github.com/krolaw/dhcp4"

	"leasedb/internal/index"
	"leasedb/internal/ids"
)

// Entry is one (option, relay_depth) identifier kind, with its own values
// hash mapping an evaluated option byte string to the head of a host
// chain sharing that value.
type Entry struct {
	Option     d4.OptionCode
	RelayDepth int
	Values     *index.Table[ids.HostID]
}

// Registry is the host-identifier registry: an ordered list of Entry,
// insertion order preserved because §4.2 notes callers depending on
// determinism must enter identifiers in a stable order.
type Registry struct {
	entries []*Entry
}

// NewRegistry creates an empty host-identifier registry.
func NewRegistry() *Registry { return &Registry{} }

// Find returns the existing entry for (option, relayDepth), if any.
func (r *Registry) Find(option d4.OptionCode, relayDepth int) (*Entry, bool) {
	for _, e := range r.entries {
		if e.Option == option && e.RelayDepth == relayDepth {
			return e, true
		}
	}
	return nil, false
}

// GetOrCreate returns the entry for (option, relayDepth), appending a new
// one to the list if it isn't already present.
func (r *Registry) GetOrCreate(option d4.OptionCode, relayDepth int) *Entry {
	if e, ok := r.Find(option, relayDepth); ok {
		return e
	}
	e := &Entry{Option: option, RelayDepth: relayDepth, Values: index.New[ids.HostID]()}
	r.entries = append(r.entries, e)
	return e
}

// Entries returns all registered entries in insertion order.
func (r *Registry) Entries() []*Entry {
	return r.entries
}
