package lease

import (
	"fmt"
	"log/slog"
	"math/big"
	"net"

	"leasedb/classes"
	"leasedb/host"
	"leasedb/internal/dbresult"
	"leasedb/internal/ids"
	"leasedb/internal/index"
	"leasedb/internal/state"
	"leasedb/topology"
)

// Journal is the subset of the persistence bridge (§6) the lease registry
// drives: write_lease and commit_leases.
type Journal interface {
	WriteLease(l *Lease) error
	CommitLeases() error
}

// FailoverNotifier is the failover contract's update-queueing half (§6),
// consumed by supersede_lease step 8.
type FailoverNotifier interface {
	QueueUpdate(l *Lease, immediate bool) error
}

// DDNSNotifier is the DDNS contract (§6), consumed by
// make_binding_state_transition before firing on_expiry/on_release.
type DDNSNotifier interface {
	Removals(l *Lease, active bool) error
}

// Registry is the Lease registry component (§4.3) plus the pool-queue and
// state-machine logic of §§4.4–4.6, since all three operate on the same
// arena of *Lease values and the same UID/HW index tables.
type Registry struct {
	leases map[ids.LeaseID]*Lease
	byUID  *index.Table[ids.LeaseID]
	byHW   *index.Table[ids.LeaseID]

	topo     *topology.Registry
	classes  *classes.Registry
	journal  Journal
	failover FailoverNotifier
	ddns     DDNSNotifier
	log      *slog.Logger

	phase Phase
}

// NewRegistry creates an empty lease registry bound to topo. classReg,
// journal, failover, and ddns may be nil for tests that don't exercise
// those collaborators.
func NewRegistry(topo *topology.Registry, classReg *classes.Registry, journal Journal, failover FailoverNotifier, ddns DDNSNotifier, log *slog.Logger) *Registry {
	return &Registry{
		leases:   make(map[ids.LeaseID]*Lease),
		byUID:    index.New[ids.LeaseID](),
		byHW:     index.New[ids.LeaseID](),
		topo:     topo,
		classes:  classReg,
		journal:  journal,
		failover: failover,
		ddns:     ddns,
		log:      defaultLogger(log),
	}
}

// EnablePhase and DisablePhase toggle the startup-reconciliation flags
// (§9's Phase design note).
func (r *Registry) EnablePhase(f Phase)  { r.phase |= f }
func (r *Registry) DisablePhase(f Phase) { r.phase &^= f }
func (r *Registry) Phase() Phase         { return r.phase }

// ipDelta returns high-low+1 as a *big.Int, supporting both IPv4 and IPv6
// ranges without overflowing a machine word.
func ipDelta(low, high net.IP) *big.Int {
	l := new(big.Int).SetBytes(low.To16())
	h := new(big.Int).SetBytes(high.To16())
	return new(big.Int).Add(new(big.Int).Sub(h, l), big.NewInt(1))
}

// addIP returns base + n as a net.IP of the same length as base.
func addIP(base net.IP, n int64) net.IP {
	bi := new(big.Int).SetBytes(base.To16())
	bi.Add(bi, big.NewInt(n))
	out := make(net.IP, 16)
	bi.FillBytes(out)
	if ip4 := base.To4(); ip4 != nil {
		return out.To4()
	}
	return out
}

// maxRangeSize bounds new_address_range allocations to something that
// comfortably fits in memory; beyond this the original's arithmetic
// overflow is treated as fatal, per §7.
const maxRangeSize = 1 << 24

// NewAddressRange validates that low and high lie within subnet,
// normalizes their order, and allocates one FREE lease per address in
// [low, high] into pool (§4.3). Addresses already present with no owning
// pool (journal-loaded orphans) are adopted; addresses already owned by a
// pool are diagnosed as a duplicate declaration and skipped.
func (r *Registry) NewAddressRange(low, high net.IP, subnetID ids.SubnetID, poolID ids.PoolID) ([]ids.LeaseID, error) {
	subnet, ok := r.topo.Subnet(subnetID)
	if !ok {
		return nil, dbresult.NotFoundf("NewAddressRange", "subnet %s not registered", subnetID)
	}
	if !subnet.Contains(low) || !subnet.Contains(high) {
		return nil, dbresult.Conflictf("NewAddressRange", "range %s-%s not contained in subnet", low, high)
	}
	if bytesCompare(low, high) > 0 {
		low, high = high, low
	}

	count := ipDelta(low, high)
	if !count.IsInt64() || count.Int64() > maxRangeSize {
		return nil, dbresult.Fatalf("NewAddressRange", "range %s-%s too large to allocate", low, high)
	}
	num := count.Int64()

	pool, ok := r.topo.Pool(poolID)
	if !ok {
		return nil, dbresult.NotFoundf("NewAddressRange", "pool %s not registered", poolID)
	}

	out := make([]ids.LeaseID, 0, num)
	for i := int64(0); i < num; i++ {
		ip := addIP(low, i)
		id := ids.LeaseID(ip.String())

		if existing, ok := r.leases[id]; ok {
			if existing.Pool == "" {
				existing.Pool = poolID
				existing.Subnet = subnetID
				out = append(out, id)
				continue
			}
			r.log.Warn("address range declared twice", "ip", ip.String())
			continue
		}

		l := &Lease{
			IP:                  ip,
			Starts:              topology.MinTime,
			Ends:                topology.MinTime,
			BindingState:        state.Free,
			NextBindingState:    state.Free,
			RewindBindingState:  state.Free,
			Pool:                poolID,
			Subnet:              subnetID,
		}
		r.leases[id] = l
		r.enqueue(pool, l)
		out = append(out, id)
	}
	return out, nil
}

func bytesCompare(a, b net.IP) int {
	a16, b16 := a.To16(), b.To16()
	for i := range a16 {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// EnterLease registers l as replayed from the journal (§4.3). If an entry
// for l's IP already exists, l inherits its pool and subnet and the old
// entry is evicted. A lease with no subnet is logged and dropped.
func (r *Registry) EnterLease(l *Lease) error {
	if l.Subnet == "" {
		r.log.Warn("dropping lease with no subnet", "ip", l.IP.String())
		return nil
	}
	id := l.ID()
	if existing, ok := r.leases[id]; ok {
		l.Pool = existing.Pool
		l.Subnet = existing.Subnet
	}
	r.leases[id] = l
	return nil
}

// FindLeaseByIPAddr returns the lease at ip, if any.
func (r *Registry) FindLeaseByIPAddr(ip net.IP) (*Lease, bool) {
	l, ok := r.leases[ids.LeaseID(ip.String())]
	return l, ok
}

// FindLeaseByUID returns the head of the UID chain for uid.
func (r *Registry) FindLeaseByUID(uid []byte) (*Lease, bool) {
	if len(uid) == 0 {
		return nil, false
	}
	id, ok := r.byUID.Head(uid)
	if !ok {
		return nil, false
	}
	return r.leases[id], true
}

// FindLeaseByHWAddr returns the head of the HW chain for (htype, addr).
func (r *Registry) FindLeaseByHWAddr(htype byte, addr []byte) (*Lease, bool) {
	key := make([]byte, 0, len(addr)+1)
	key = append(key, htype)
	key = append(key, addr...)
	id, ok := r.byHW.Head(key)
	if !ok {
		return nil, false
	}
	return r.leases[id], true
}

// All returns every lease currently registered, for whole-database
// diagnostics (§12 dump_subnets/free_everything style reporting). Order
// is unspecified.
func (r *Registry) All() []*Lease {
	out := make([]*Lease, 0, len(r.leases))
	for _, l := range r.leases {
		out = append(out, l)
	}
	return out
}

// NextUID and NextHW return l's sibling within the UID or HW chain it was
// reached through, for callers walking a lookup result manually.
func (r *Registry) NextUID(l *Lease) (*Lease, bool) {
	if l.NUID == "" {
		return nil, false
	}
	return r.leases[l.NUID], true
}

func (r *Registry) NextHW(l *Lease) (*Lease, bool) {
	if l.NHW == "" {
		return nil, false
	}
	return r.leases[l.NHW], true
}

// LeaseCopy deep-copies src's owned fields into dst: UID, client hostname,
// scope, agent options, and hook statements, plus the weak-owned
// pool/subnet/host/class references (§4.3; used by AbandonLease to build
// the replacement lease's starting point).
func LeaseCopy(dst, src *Lease) {
	dst.UID = append([]byte(nil), src.UID...)
	dst.HardwareAddr = host.HWAddr{Type: src.HardwareAddr.Type, Addr: append([]byte(nil), src.HardwareAddr.Addr...)}
	dst.ClientHostname = src.ClientHostname
	dst.AgentOptions = src.AgentOptions.Clone()
	dst.OnExpiry, dst.OnCommit, dst.OnRelease = src.OnExpiry, src.OnCommit, src.OnRelease
	dst.Pool, dst.Subnet, dst.Host, dst.Class = src.Pool, src.Subnet, src.Host, src.Class
	if src.Scope != nil {
		dst.Scope = make(map[string]string, len(src.Scope))
		for k, v := range src.Scope {
			dst.Scope[k] = v
		}
	}
}

func (l *Lease) String() string {
	return fmt.Sprintf("lease{ip=%s state=%s}", l.IP, l.BindingState)
}
