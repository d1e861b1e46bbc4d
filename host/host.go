// Package host implements §4.2's Host registry: host reservations indexed
// by name, hardware address, client UID, and by option-code identifiers
// (with optional DHCPv6 relay depth).
package host

import (
	d4 "github.com/krolaw/dhcp4"

	"leasedb/internal/ids"
)

// Flags mirrors the HOST_DECL_* bitset of §3.
type Flags uint8

const (
	FlagDeleted Flags = 1 << iota
	FlagStatic
	FlagDynamic
)

// HWAddr is a hardware-type-tagged link-layer address, used both as the
// Host.Interface field and as the by-HW index key (type prepended to the
// byte string, per §4.2 find_hosts_by_haddr).
type HWAddr struct {
	Type byte
	Addr []byte
}

// Key returns the by-HW index key: the hardware-type byte prepended to
// the address bytes.
func (h HWAddr) Key() []byte {
	if len(h.Addr) == 0 {
		return nil
	}
	k := make([]byte, 0, len(h.Addr)+1)
	k = append(k, h.Type)
	k = append(k, h.Addr...)
	return k
}

// Set reports whether this hardware address is populated.
func (h HWAddr) Set() bool { return len(h.Addr) > 0 }

// HostIDOption names an option code plus DHCPv6 relay depth used as a
// host identifier (§3, §4.2).
type HostIDOption struct {
	Option     d4.OptionCode
	RelayDepth int
}

// StatementKind distinguishes the group statements this package cares
// about from all the other statement kinds config-language statement
// scopes can carry (which this module never interprets — see §1's
// "configuration-file parsing" out-of-scope collaborator).
type StatementKind int

const (
	StatementOther StatementKind = iota
	// StatementSupersedeClientIdentifier is "supersede
	// dhcp-client-identifier <value>;" (§4.2 EnterHost policy).
	StatementSupersedeClientIdentifier
)

// Statement is one evaluated group-scope statement.
type Statement struct {
	Kind        StatementKind
	Conditional bool
	Value       []byte
}

// Group is the statement scope a host declaration lives in (§3).
type Group struct {
	Statements []Statement
}

// FixedAddrExpr is the evaluatable expression producing one or more IPv4
// addresses for a host's fixed-address declaration (§3, §4.2
// find_host_for_network). The option-evaluation engine that actually
// parses and runs such expressions lives outside this module (§1); this
// interface is the seam the database calls through.
type FixedAddrExpr interface {
	// Evaluate returns the packed IPv4 address bytes: a multiple-of-4
	// byte string, one 4-byte address per entry.
	Evaluate() ([]byte, error)
}

// Host is a host reservation (§3).
type Host struct {
	ID               ids.HostID
	Name             string
	Interface        HWAddr
	ClientIdentifier []byte
	HostIDOption     *HostIDOption
	HostIDValue      []byte
	FixedAddr        FixedAddrExpr
	Group            *Group
	Flags            Flags

	// NIPAddr is the single sibling-chain pointer shared across whichever
	// one of the four host indexes this host was appended behind (§3).
	// The original dhcpd reuses one n_ipaddr field for every index a
	// host collides in; this is a faithful carry-over of that choice,
	// not a simplification introduced here.
	NIPAddr ids.HostID
}

// Deleted reports whether this host carries HOST_DECL_DELETED.
func (h *Host) Deleted() bool { return h.Flags&FlagDeleted != 0 }

// Static reports whether this host carries HOST_DECL_STATIC.
func (h *Host) Static() bool { return h.Flags&FlagStatic != 0 }

// Dynamic reports whether this host carries HOST_DECL_DYNAMIC.
func (h *Host) Dynamic() bool { return h.Flags&FlagDynamic != 0 }

// UIDKey returns the by-UID index key for this host, or nil if it has no
// client identifier.
func (h *Host) UIDKey() []byte {
	if len(h.ClientIdentifier) == 0 {
		return nil
	}
	return h.ClientIdentifier
}

// optionKey returns the byte string find_hosts_by_option would hash this
// host's recorded identifier value under.
func (h *Host) optionKey() []byte {
	return h.HostIDValue
}
