package lease

import (
	"time"

	"leasedb/internal/dbresult"
	"leasedb/internal/ids"
	"leasedb/internal/state"
	"leasedb/topology"
)

// Phase mirrors server_starting and its SS_NOSYNC/SS_QFOLLOW sub-flags
// (§9 design note: "model server_starting as an explicit Phase enum
// passed via the database handle, not a module-level boolean").
type Phase uint8

const (
	PhaseNormal Phase = 0
	// PhaseStarting marks startup reconciliation in progress
	// (expire_all_pools' server_starting).
	PhaseStarting Phase = 1 << iota
	// PhaseNoSync suppresses commit_leases during a supersede (§4.5 step 7).
	PhaseNoSync
	// PhaseQFollow enables the fast-path queue insertion optimization
	// (§4.4).
	PhaseQFollow
)

func (p Phase) has(f Phase) bool { return p&f != 0 }

// sortTime computes the sort_time a lease would receive on enqueue,
// per the §4.4 table.
func sortTime(l *Lease, pool *topology.Pool) time.Time {
	switch l.BindingState {
	case state.Expired, state.Released, state.Reset:
		if pool != nil && pool.PartnerDown() && l.Tsfp.After(l.Ends) {
			return l.Tsfp
		}
		return l.Ends
	default:
		return l.Ends
	}
}

// enqueue inserts l into its pool's appropriate queue, insertion-sorted by
// sort_time, honoring the SS_QFOLLOW fast-path optimization during startup
// (§4.4). l.SortTime and l.Next are set as a side effect.
func (r *Registry) enqueue(pool *topology.Pool, l *Lease) {
	l.SortTime = sortTime(l, pool)
	q := l.queueOf()

	if r.phase.has(PhaseQFollow) {
		if lq, lid, ok := pool.LastInsert(); ok && lq == q {
			if last, exists := r.leases[lid]; exists && !l.SortTime.Before(last.SortTime) {
				r.insertFrom(pool, q, lid, l)
				pool.SetLastInsert(q, l.ID())
				r.adjustCounters(pool, q, l, 1)
				return
			}
		}
	}

	r.insertFrom(pool, q, pool.Head(q), l)
	if r.phase.has(PhaseQFollow) {
		pool.SetLastInsert(q, l.ID())
	}
	r.adjustCounters(pool, q, l, 1)
}

// insertFrom walks queue q starting at start (the queue head, or a known
// prior insertion point for the fast path), inserting l at the first
// position whose sort_time is not smaller than l's.
func (r *Registry) insertFrom(pool *topology.Pool, q state.Queue, start ids.LeaseID, l *Lease) {
	if start == "" {
		pool.SetHead(q, l.ID())
		pool.SetTail(q, l.ID())
		l.Next = ""
		return
	}
	if head := pool.Head(q); start == head {
		if !r.leases[head].SortTime.Before(l.SortTime) {
			l.Next = head
			pool.SetHead(q, l.ID())
			return
		}
	}
	prev := r.leases[start]
	for {
		if prev.Next == "" {
			prev.Next = l.ID()
			l.Next = ""
			pool.SetTail(q, l.ID())
			return
		}
		next := r.leases[prev.Next]
		if !next.SortTime.Before(l.SortTime) {
			l.Next = next.ID()
			prev.Next = l.ID()
			return
		}
		prev = next
	}
}

// dequeue removes l from pool's queue q. Absence is a programming error
// and, per §4.4, fatal.
func (r *Registry) dequeue(pool *topology.Pool, q state.Queue, l *Lease) error {
	head := pool.Head(q)
	if head == "" {
		return dbresult.Fatalf("dequeue", "queue %s empty, expected lease %s", q, l.ID())
	}
	if head == l.ID() {
		pool.SetHead(q, l.Next)
		if pool.Tail(q) == l.ID() {
			pool.SetTail(q, l.Next)
		}
		l.Next = ""
		r.adjustCounters(pool, q, l, -1)
		return nil
	}
	prev := r.leases[head]
	for {
		if prev.Next == "" {
			return dbresult.Fatalf("dequeue", "lease %s not found in queue %s", l.ID(), q)
		}
		if prev.Next == l.ID() {
			prev.Next = l.Next
			if pool.Tail(q) == l.ID() {
				pool.SetTail(q, prev.ID())
			}
			l.Next = ""
			r.adjustCounters(pool, q, l, -1)
			return nil
		}
		prev = r.leases[prev.Next]
	}
}

// adjustCounters maintains invariant 6: free_leases/backup_leases track
// queue length, except reserved leases, which are queued in the reserved
// queue without affecting either counter.
func (r *Registry) adjustCounters(pool *topology.Pool, q state.Queue, l *Lease, delta int) {
	pool.AdjustLen(q, delta)
	pool.LeaseCount += delta
	if l.Reserved() {
		return
	}
	switch q {
	case state.QueueFree:
		pool.FreeLeases += delta
	case state.QueueBackup:
		pool.BackupLeases += delta
	}
}

// recount recomputes lease_count, free_leases, and backup_leases for pool
// by walking its six queues — used by expire_all_pools' startup pass
// (§4.6) to recover from a journal replay that built queues without going
// through enqueue/adjustCounters.
func (r *Registry) recount(pool *topology.Pool) {
	pool.LeaseCount, pool.FreeLeases, pool.BackupLeases = 0, 0, 0
	for _, q := range state.AllQueues {
		n := pool.Len(q)
		pool.LeaseCount += n
		switch q {
		case state.QueueFree:
			pool.FreeLeases += n
		case state.QueueBackup:
			pool.BackupLeases += n
		}
	}
}
