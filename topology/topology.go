// Package topology implements §4's Topology component: subnets, shared
// networks, and pools. A pool owns six queues (one per §4.4 binding-state
// group); the queue contents themselves — the sort_time-ordered chains of
// lease IDs — are manipulated by the lease package, which is the only
// package that understands sort_time. Pool here only holds the six queue
// heads and the counters/timer state §3 assigns it.
package topology

import (
	"net"
	"time"

	"leasedb/internal/ids"
	"leasedb/internal/state"
)

// MinTime and MaxTime bound the sort_time domain (§3, §4.6): MinTime means
// "no pending event" for next_event_time, MaxTime means "never" for the
// expiry scan's running minimum.
var (
	MinTime = time.Unix(0, 0).UTC()
	MaxTime = time.Unix(1<<62, 0).UTC()
)

// PeerRole is this server's role in a failover pair (§6).
type PeerRole int

const (
	RoleNone PeerRole = iota
	RolePrimary
	RoleSecondary
)

// PeerFailoverState mirrors the subset of failover protocol state the
// core consults to decide sort_time and queue-skip policy (§4.4, §4.6).
type PeerFailoverState int

const (
	PeerStateUnknown PeerFailoverState = iota
	PeerStateNormal
	PeerStatePartnerDown
)

// FailoverPeer exposes the failover peer state consumed per §6: role,
// protocol state, and the two MCLT-related timestamps used to compute
// tsfp-driven sort times and the partner-down FREE rewind.
type FailoverPeer struct {
	IAm          PeerRole
	State        PeerFailoverState
	ServiceState PeerFailoverState
	Stos         time.Time     // start of state
	MCLT         time.Duration // maximum client lead time
}

// Subnet is one IPv4/IPv6 network serviced by the database.
type Subnet struct {
	ID             ids.SubnetID
	Net            net.IP
	Netmask        net.IPMask
	SharedNetwork  ids.SharedNetworkID
	NextSibling    ids.SubnetID
}

// Number returns the network address obtained by masking ip with this
// subnet's netmask — the subnet_number(addr, mask) == net test §4.2's
// find_host_for_network relies on.
func (s *Subnet) Number(ip net.IP) net.IP {
	return ip.Mask(s.Netmask)
}

// Contains reports whether ip belongs to this subnet.
func (s *Subnet) Contains(ip net.IP) bool {
	return s.Number(ip).Equal(s.Net)
}

// SharedNetwork is a set of subnets served over one broadcast domain.
type SharedNetwork struct {
	ID          ids.SharedNetworkID
	Interface   string
	Pools       []ids.PoolID
	firstSubnet ids.SubnetID
}

// Pool is a group of leases sharing admission policy. It owns six queues
// of lease IDs, keyed by state.Queue, plus the counters and timer state
// invariants 6 and 7 describe.
type Pool struct {
	ID            ids.PoolID
	SharedNetwork ids.SharedNetworkID
	LeaseCount    int
	FreeLeases    int
	BackupLeases  int
	NextEventTime time.Time
	FailoverPeer  *FailoverPeer

	queueHead [state.NumPoolQueues]ids.LeaseID
	queueTail [state.NumPoolQueues]ids.LeaseID
	queueLen  [state.NumPoolQueues]int

	// lastInsert supports the SS_QFOLLOW fast-path insertion optimization
	// of §4.4: the queue and lease most recently inserted, so a
	// monotonically increasing stream of inserts during startup doesn't
	// re-scan from the head every time.
	lastInsertQueue state.Queue
	lastInsertLease ids.LeaseID
	hasLastInsert   bool

	// timerRunning guards pool_timer against the re-entrant call
	// supersede_lease can trigger when from_pool==0 and the new state has
	// already expired (§9 open question): pool_timer sets it on entry and
	// clears it on return, so a nested call on the same pool is a no-op
	// rather than unbounded recursion.
	timerRunning bool
}

// NewPool creates an empty pool with no pending event.
func NewPool(id ids.PoolID, shared ids.SharedNetworkID) *Pool {
	return &Pool{ID: id, SharedNetwork: shared, NextEventTime: MinTime}
}

// Head returns the head lease ID of queue q.
func (p *Pool) Head(q state.Queue) ids.LeaseID { return p.queueHead[q] }

// Tail returns the tail lease ID of queue q.
func (p *Pool) Tail(q state.Queue) ids.LeaseID { return p.queueTail[q] }

// Len returns the number of leases currently queued in q.
func (p *Pool) Len(q state.Queue) int { return p.queueLen[q] }

// SetHead installs id as the new head of queue q. Used by the lease
// package's insertion-sort logic, which owns the intra-chain Next links.
func (p *Pool) SetHead(q state.Queue, id ids.LeaseID) { p.queueHead[q] = id }

// SetTail installs id as the new tail of queue q.
func (p *Pool) SetTail(q state.Queue, id ids.LeaseID) { p.queueTail[q] = id }

// AdjustLen adds delta (positive or negative) to queue q's length.
func (p *Pool) AdjustLen(q state.Queue, delta int) { p.queueLen[q] += delta }

// SetLen sets queue q's length directly.
func (p *Pool) SetLen(q state.Queue, n int) { p.queueLen[q] = n }

// LastInsert returns the queue and lease of the most recent fast-path
// insertion, if any, for the SS_QFOLLOW optimization.
func (p *Pool) LastInsert() (state.Queue, ids.LeaseID, bool) {
	return p.lastInsertQueue, p.lastInsertLease, p.hasLastInsert
}

// SetLastInsert records the most recent fast-path insertion point.
func (p *Pool) SetLastInsert(q state.Queue, id ids.LeaseID) {
	p.lastInsertQueue, p.lastInsertLease, p.hasLastInsert = q, id, true
}

// ClearLastInsert discards the fast-path insertion point, forcing the
// next insertion into this pool to scan from the head.
func (p *Pool) ClearLastInsert() { p.hasLastInsert = false }

// TimerRunning reports whether pool_timer is currently executing for this
// pool.
func (p *Pool) TimerRunning() bool { return p.timerRunning }

// SetTimerRunning sets or clears the pool_timer re-entrancy guard.
func (p *Pool) SetTimerRunning(running bool) { p.timerRunning = running }

// PartnerDown reports whether this pool's failover peer (if any) has
// entered partner-down state, the condition that changes sort_time policy
// for EXPIRED/RELEASED/RESET leases (§4.4) and queue-skip policy in
// pool_timer (§4.6).
func (p *Pool) PartnerDown() bool {
	return p.FailoverPeer != nil && p.FailoverPeer.State == PeerStatePartnerDown
}

// Registry is the Topology component: the global lists of subnets, shared
// networks, and pools (§3, §9 "global singletons -> explicit handle").
type Registry struct {
	subnets        map[ids.SubnetID]*Subnet
	sharedNetworks map[ids.SharedNetworkID]*SharedNetwork
	pools          map[ids.PoolID]*Pool
	subnetOrder    []ids.SubnetID
	sharedOrder    []ids.SharedNetworkID
}

// NewRegistry creates an empty topology registry.
func NewRegistry() *Registry {
	return &Registry{
		subnets:        make(map[ids.SubnetID]*Subnet),
		sharedNetworks: make(map[ids.SharedNetworkID]*SharedNetwork),
		pools:          make(map[ids.PoolID]*Pool),
	}
}

// AddSubnet registers a subnet, chaining it onto its shared network's
// subnet-sibling list if one is given.
func (r *Registry) AddSubnet(s *Subnet) {
	if _, exists := r.subnets[s.ID]; !exists {
		r.subnetOrder = append(r.subnetOrder, s.ID)
	}
	if s.SharedNetwork.Valid() {
		if sn, ok := r.sharedNetworks[s.SharedNetwork]; ok {
			s.NextSibling = sn.firstSubnet
			sn.firstSubnet = s.ID
		}
	}
	r.subnets[s.ID] = s
}

// AddSharedNetwork registers a shared network.
func (r *Registry) AddSharedNetwork(sn *SharedNetwork) {
	if _, exists := r.sharedNetworks[sn.ID]; !exists {
		r.sharedOrder = append(r.sharedOrder, sn.ID)
	}
	r.sharedNetworks[sn.ID] = sn
}

// AddPool registers a pool and appends it to its shared network's pool
// list.
func (r *Registry) AddPool(p *Pool) {
	r.pools[p.ID] = p
	if p.SharedNetwork.Valid() {
		if sn, ok := r.sharedNetworks[p.SharedNetwork]; ok {
			sn.Pools = append(sn.Pools, p.ID)
		}
	}
}

// Subnet looks up a subnet by ID.
func (r *Registry) Subnet(id ids.SubnetID) (*Subnet, bool) {
	s, ok := r.subnets[id]
	return s, ok
}

// SharedNetwork looks up a shared network by ID.
func (r *Registry) SharedNetwork(id ids.SharedNetworkID) (*SharedNetwork, bool) {
	sn, ok := r.sharedNetworks[id]
	return sn, ok
}

// Pool looks up a pool by ID.
func (r *Registry) Pool(id ids.PoolID) (*Pool, bool) {
	p, ok := r.pools[id]
	return p, ok
}

// Pools returns every registered pool, in registration-independent order
// (map iteration order); callers that need determinism should sort by ID.
func (r *Registry) Pools() []*Pool {
	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	return out
}

// Subnets returns every registered subnet in insertion order, mirroring
// the original's global `subnets` list traversal order.
func (r *Registry) Subnets() []*Subnet {
	out := make([]*Subnet, 0, len(r.subnetOrder))
	for _, id := range r.subnetOrder {
		out = append(out, r.subnets[id])
	}
	return out
}

// FindSubnetForIP returns the subnet containing ip, if any is registered.
func (r *Registry) FindSubnetForIP(ip net.IP) (*Subnet, bool) {
	for _, id := range r.subnetOrder {
		s := r.subnets[id]
		if s.Contains(ip) {
			return s, true
		}
	}
	return nil, false
}
