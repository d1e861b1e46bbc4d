// Package lease implements the Lease registry, pool queues, state
// machine, and expiry scheduler of §§3–4.7: the heart of the database.
// Leases are simultaneously indexed by IP, UID, and hardware address;
// queued per pool by binding state; and transitioned through the state
// machine under supersede_lease.
package lease

import (
	"log/slog"
	"net"
	"time"

	"leasedb/host"
	"leasedb/internal/ids"
	"leasedb/internal/state"
	"leasedb/optioncache"
)

// Flags mirrors the lease flags bitset of §3.
type Flags uint32

const (
	FlagReserved Flags = 1 << iota
	FlagStatic
	FlagOnUpdateQueue
)

// PersistentFlags and EphemeralFlags group the lease flags bitset exactly
// as §3 names them: PERSISTENT_FLAGS survive a supersede's flag merge,
// EPHEMERAL_FLAGS are dropped from the existing lease and only ever come
// from the incoming sample.
const (
	PersistentFlags = FlagReserved | FlagStatic
	EphemeralFlags  = FlagOnUpdateQueue
)

// Hook is an opaque, already-parsed config-language statement attached to
// a lease (on_expiry, on_commit, on_release). The statement grammar and
// evaluator live outside this module (§1); the state machine only needs
// to invoke one at the right moment with a small context record — the
// "executable hook statements -> closures" design note's seam.
type Hook interface {
	Run(ctx *HookContext) error
}

// HookContext is the small context record passed to a Hook when the
// state machine fires it.
type HookContext struct {
	Lease  *Lease
	Reason string
}

// Lease is a single IP address lease (§3).
type Lease struct {
	IP net.IP

	Starts, Ends, Cltt, Tstp, Tsfp, Atsfp time.Time
	SortTime                              time.Time

	UID          []byte
	HardwareAddr host.HWAddr

	BindingState        state.BindingState
	NextBindingState    state.BindingState
	RewindBindingState  state.BindingState
	Flags               Flags

	Pool   ids.PoolID
	Subnet ids.SubnetID
	Host   ids.HostID
	Class  ids.ClassID

	Scope          map[string]string
	AgentOptions   optioncache.Options
	ClientHostname string

	OnExpiry, OnCommit, OnRelease Hook

	// NUID and NHW are this lease's sibling pointers within the UID and
	// HW index collision chains (§3 invariants 2, 3).
	NUID, NHW ids.LeaseID
	// Next is this lease's sibling pointer within its current pool queue
	// (§3 invariant 1; §4.4).
	Next ids.LeaseID
}

// ID is this lease's identity: its IP address in canonical string form,
// which invariant 4 already guarantees is unique within the configured
// address space.
func (l *Lease) ID() ids.LeaseID { return ids.LeaseID(l.IP.String()) }

// Reserved reports whether this lease carries the RESERVED_LEASE flag.
func (l *Lease) Reserved() bool { return l.Flags&FlagReserved != 0 }

// UIDKey returns the by-UID index key for this lease, or nil if unset.
func (l *Lease) UIDKey() []byte {
	if len(l.UID) == 0 {
		return nil
	}
	return l.UID
}

// HWKey returns the by-HW index key for this lease. Per §4.1/§4.3, the
// single-byte InfiniBand hardware type is never indexed (its key is
// always a miss), so HWKey returns nil for it.
func (l *Lease) HWKey() []byte {
	if !l.HardwareAddr.Set() {
		return nil
	}
	if isInfiniBand(l.HardwareAddr) {
		return nil
	}
	return l.HardwareAddr.Key()
}

// hardwareTypeInfiniBand is the ARP hardware type for InfiniBand link
// layers (RFC 4391); leases carrying it are never HW-indexed because the
// "address" is a single byte insufficient to distinguish clients.
const hardwareTypeInfiniBand = 32

func isInfiniBand(hw host.HWAddr) bool {
	return hw.Type == hardwareTypeInfiniBand && len(hw.Addr) <= 1
}

// queueOf returns the queue this lease currently belongs to, given its
// binding state and flags (§3 invariant 1, §4.4's reserved-queue
// override).
func (l *Lease) queueOf() state.Queue {
	if l.Reserved() {
		return state.QueueReserved
	}
	return state.QueueFor(l.BindingState)
}

func defaultLogger(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
