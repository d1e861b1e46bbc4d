package lease

import (
	"context"
	"time"

	"leasedb/internal/state"
	"leasedb/topology"
)

// PoolTimer examines pool's six queues in order FREE→RESERVED, firing
// supersede_lease for every lease whose sort_time has arrived, and rearms
// or clears pool.NextEventTime for the earliest lease still pending
// (§4.6). Guarded against the re-entrant call supersede_lease can trigger.
func (r *Registry) PoolTimer(pool *topology.Pool) error {
	if pool.TimerRunning() {
		return nil
	}
	pool.SetTimerRunning(true)
	defer pool.SetTimerRunning(false)

	now := timeNow()
	nextExpiry := topology.MaxTime
	secondary := pool.FailoverPeer != nil && pool.FailoverPeer.IAm == topology.RoleSecondary
	partnerDown := pool.PartnerDown()

	for _, q := range state.AllQueues {
		if pool.FailoverPeer != nil && !partnerDown {
			if secondary && q == state.QueueActive {
				continue
			}
			if q == state.QueueExpired {
				continue
			}
		}

		id := pool.Head(q)
		for id != "" {
			l := r.leases[id]
			next := l.Next

			if l.SortTime.After(now) {
				if l.SortTime.Before(nextExpiry) {
					nextExpiry = l.SortTime
				}
				break
			}

			if l.NextBindingState != l.BindingState {
				if pool.PartnerDown() {
					l.NextBindingState = l.RewindBindingState
				}
				if err := r.SupersedeLease(l, nil, true, true, true, true); err != nil {
					r.log.Warn("pool_timer: supersede failed", "ip", l.IP.String(), "err", err)
				}
			}

			id = next
		}
	}

	if nextExpiry != topology.MaxTime {
		if pool.NextEventTime.Equal(topology.MinTime) || pool.NextEventTime.After(nextExpiry) || !pool.NextEventTime.After(now) {
			pool.NextEventTime = nextExpiry
		}
	} else {
		pool.NextEventTime = topology.MinTime
	}
	return nil
}

// ExpireAllPools performs the startup reconciliation pass (§4.6): it
// enables PhaseNoSync|PhaseQFollow, instantiates every lease in the IP
// hash into its pool's queues and the UID/HW indexes, disables
// PhaseQFollow, runs PoolTimer on every pool in turn, and recomputes each
// pool's counters. Pools are walked sequentially, not concurrently: the
// UID/HW indexes (§4.2) are global across every pool, and PoolTimer's
// supersede_lease calls mutate them in multi-step, non-atomic sequences
// that the single-threaded cooperative model (§5) never has to guard
// against otherwise.
func (r *Registry) ExpireAllPools(ctx context.Context) error {
	r.EnablePhase(PhaseNoSync | PhaseQFollow)

	for _, l := range r.leases {
		r.leaseInstantiate(l)
	}

	r.DisablePhase(PhaseQFollow)

	for _, pool := range r.topo.Pools() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.PoolTimer(pool); err != nil {
			return err
		}
	}

	for _, pool := range r.topo.Pools() {
		r.recount(pool)
	}

	r.DisablePhase(PhaseStarting | PhaseNoSync)
	return nil
}

// leaseInstantiate enqueues a journal-loaded lease into its pool's queue
// and indexes it by UID/HW. A BACKUP lease whose pool no longer has a
// failover peer is demoted to FREE, since a standalone pool has nothing
// to reserve backup capacity for.
func (r *Registry) leaseInstantiate(l *Lease) {
	pool, ok := r.topo.Pool(l.Pool)
	if !ok {
		return
	}
	if l.BindingState == state.Backup && pool.FailoverPeer == nil {
		l.BindingState = state.Free
		l.NextBindingState = state.Free
	}
	r.enqueue(pool, l)
	r.indexIntoSecondaryIndexes(l)
}

// AbandonLease retires existing by building a replacement via LeaseCopy
// and superseding it into ABANDONED (§8 scenario S6): UID is cleared, the
// hardware address chain length is zeroed, and ends is set to
// now+abandonLeaseTime, capped at MaxTime.
func (r *Registry) AbandonLease(existing *Lease, message string, abandonLeaseTime time.Duration, now time.Time) error {
	sample := &Lease{IP: existing.IP}
	LeaseCopy(sample, existing)
	sample.UID = nil
	sample.HardwareAddr.Addr = nil
	sample.BindingState = existing.BindingState
	sample.NextBindingState = state.Abandoned
	sample.Cltt = now
	sample.Ends = now.Add(abandonLeaseTime)
	if sample.Ends.After(topology.MaxTime) {
		sample.Ends = topology.MaxTime
	}
	r.log.Info("abandoning lease", "ip", existing.IP.String(), "message", message)
	return r.SupersedeLease(existing, sample, true, true, false, false)
}
