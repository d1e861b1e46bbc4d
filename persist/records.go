// Package persist implements the journal/persistence bridge of §6: the
// write_host, write_lease, write_named_billing_class, write_group, and
// commit_leases contract the core consumes but never defines the format
// of. Record shape here is this module's own choice — spec §1 explicitly
// leaves persistence format out of scope — so it captures exactly the
// fields the registries need to rebuild themselves from a replay, and
// drops what it can't durably represent (hook statements, fixed-address
// expressions: both are opaque, externally-owned closures per §6).
package persist

import (
	d4 "github.com/krolaw/dhcp4"

	"leasedb/host"
	"leasedb/lease"
)

// leaseRecord is the durable projection of a lease.Lease.
type leaseRecord struct {
	IP                                    string
	Starts, Ends, Cltt, Tstp, Tsfp, Atsfp int64 // unix seconds
	UID                                   []byte
	HWType                                byte
	HWAddr                                []byte
	BindingState                          int
	NextBindingState                      int
	RewindBindingState                    int
	Flags                                 uint32
	Pool                                  string
	Subnet                                string
	Host                                  string
	Class                                 string
	Scope                                 map[string]string
	ClientHostname                        string
	AgentOptions                          map[byte][]byte
}

// hostRecord is the durable projection of a host.Host.
type hostRecord struct {
	ID               string
	Name             string
	HWType           byte
	HWAddr           []byte
	ClientIdentifier []byte
	HasHostIDOption  bool
	HostIDOption     byte
	HostIDRelayDepth int
	HostIDValue      []byte
	Flags            uint8
}

// classRecord is the durable projection written by write_named_billing_class:
// a name and an opaque, caller-defined blob (the class's matching
// expression, in whatever form the class's owner serializes it).
type classRecord struct {
	Name string
	CP   []byte
}

func toLeaseRecord(l *lease.Lease) leaseRecord {
	return leaseRecord{
		IP:                 l.IP.String(),
		Starts:              l.Starts.Unix(),
		Ends:                l.Ends.Unix(),
		Cltt:                l.Cltt.Unix(),
		Tstp:                l.Tstp.Unix(),
		Tsfp:                l.Tsfp.Unix(),
		Atsfp:               l.Atsfp.Unix(),
		UID:                 append([]byte(nil), l.UID...),
		HWType:              l.HardwareAddr.Type,
		HWAddr:              append([]byte(nil), l.HardwareAddr.Addr...),
		BindingState:        int(l.BindingState),
		NextBindingState:    int(l.NextBindingState),
		RewindBindingState:  int(l.RewindBindingState),
		Flags:               uint32(l.Flags),
		Pool:                string(l.Pool),
		Subnet:              string(l.Subnet),
		Host:                string(l.Host),
		Class:               string(l.Class),
		Scope:               l.Scope,
		ClientHostname:      l.ClientHostname,
		AgentOptions:        agentOptionsToMap(l.AgentOptions),
	}
}

func agentOptionsToMap(o map[d4.OptionCode][]byte) map[byte][]byte {
	if o == nil {
		return nil
	}
	out := make(map[byte][]byte, len(o))
	for k, v := range o {
		out[byte(k)] = v
	}
	return out
}

func mapToAgentOptions(m map[byte][]byte) map[d4.OptionCode][]byte {
	if m == nil {
		return nil
	}
	out := make(map[d4.OptionCode][]byte, len(m))
	for k, v := range m {
		out[d4.OptionCode(k)] = v
	}
	return out
}

func toHostRecord(h *host.Host) hostRecord {
	r := hostRecord{
		ID:               string(h.ID),
		Name:             h.Name,
		HWType:           h.Interface.Type,
		HWAddr:           append([]byte(nil), h.Interface.Addr...),
		ClientIdentifier: append([]byte(nil), h.ClientIdentifier...),
		Flags:            uint8(h.Flags),
	}
	if h.HostIDOption != nil {
		r.HasHostIDOption = true
		r.HostIDOption = byte(h.HostIDOption.Option)
		r.HostIDRelayDepth = h.HostIDOption.RelayDepth
		r.HostIDValue = append([]byte(nil), h.HostIDValue...)
	}
	return r
}
