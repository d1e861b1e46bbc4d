package lease

import (
	"time"

	"leasedb/internal/dbresult"
	"leasedb/internal/state"
	"leasedb/topology"
)

// SupersedeLease applies sample onto existing, running the full §4.5
// contract. When sample is present: conflict detection, index withdrawal,
// billing, and field copy run first; the queue removal, state transition,
// re-enqueue, timer arming, persistence, and failover propagation that
// follow are shared with the "just move it" path taken when sample is
// nil. immediate without commit is a caller bug and rejected. A sample
// carrying the static-lease flag is a silent no-op (static leases are
// never tracked in queues).
func (r *Registry) SupersedeLease(existing, sample *Lease, commit, propagate, immediate, fromPool bool) error {
	if immediate && !commit {
		return dbresult.Invariantf("SupersedeLease", "immediate requires commit")
	}
	if sample != nil {
		if sample.Flags&FlagStatic != 0 {
			return nil
		}

		// Step 1: conflict detection.
		if existing.BindingState != state.Abandoned && sample.NextBindingState != state.Abandoned &&
			existing.BindingState == state.Active && !sameClient(existing, sample) {
			r.log.Warn("Lease conflict", "ip", existing.IP.String(),
				"existing_uid", existing.UID, "sample_uid", sample.UID)
		}

		// Step 2: index withdrawal.
		r.withdrawFromSecondaryIndexes(existing)

		// Step 3: billing. bill_class in the original also assigns the
		// billing-class reference itself, so existing.Class is updated
		// here rather than in the field-copy block below.
		if existing.Class != sample.Class {
			if r.classes != nil {
				r.classes.Unbill(existing.Class)
			}
			existing.Class = sample.Class
			if r.classes != nil {
				r.classes.Bill(existing.Class)
			}
		}

		// Step 4: field copy (linkages — queue membership, indexing — are
		// handled by the shared tail below, not copied here).
		existing.Starts = sample.Starts
		existing.UID = sample.UID
		existing.Host = sample.Host
		existing.HardwareAddr = sample.HardwareAddr
		existing.Scope = sample.Scope
		if sample.NextBindingState == state.Active || sample.NextBindingState == state.Expired {
			existing.AgentOptions = sample.AgentOptions
		} else {
			existing.AgentOptions = nil
		}
		existing.ClientHostname = sample.ClientHostname
		existing.OnExpiry, existing.OnCommit, existing.OnRelease = sample.OnExpiry, sample.OnCommit, sample.OnRelease
		existing.Cltt, existing.Tstp, existing.Tsfp, existing.Atsfp = sample.Cltt, sample.Tstp, sample.Tsfp, sample.Atsfp
		existing.Ends = sample.Ends
		existing.NextBindingState = sample.NextBindingState
	}

	// just_move_it: shared by both the sample-present and "just move it"
	// cases. atsfp is cleared on any propagating state change regardless
	// of which path got us here.
	if propagate {
		existing.Atsfp = time.Time{}
	}

	pool, ok := r.topo.Pool(existing.Pool)
	if !ok {
		return dbresult.NotFoundf("SupersedeLease", "lease %s has no pool", existing.ID())
	}

	if err := r.dequeue(pool, existing.queueOf(), existing); err != nil {
		return err
	}

	if sample != nil {
		existing.Flags = (sample.Flags &^ PersistentFlags) | (existing.Flags &^ EphemeralFlags)
	}

	if commit || !immediate {
		r.makeBindingStateTransition(existing)
	}

	r.enqueue(pool, existing)
	if sample != nil {
		r.indexIntoSecondaryIndexes(existing)
	}

	now := timeNow()
	if (commit || !immediate) && !existing.SortTime.Equal(topology.MinTime) && existing.SortTime.After(now) &&
		(existing.SortTime.Before(pool.NextEventTime) || pool.NextEventTime.Equal(topology.MinTime)) {
		pool.NextEventTime = existing.SortTime
	}

	if commit {
		if r.journal != nil {
			if err := r.journal.WriteLease(existing); err != nil {
				return dbresult.IOErrorf("SupersedeLease", "write_lease: %w", err)
			}
			if !r.phase.has(PhaseNoSync) {
				if err := r.journal.CommitLeases(); err != nil {
					return dbresult.IOErrorf("SupersedeLease", "commit_leases: %w", err)
				}
			}
		}
	}

	if propagate {
		if r.failover != nil {
			if err := r.failover.QueueUpdate(existing, immediate); err != nil {
				r.log.Warn("failover queue update failed", "ip", existing.IP.String(), "err", err)
			}
		}
	}

	if !fromPool && (commit || !immediate) && existing.SortTime.Before(now) &&
		existing.NextBindingState != existing.BindingState {
		if err := r.PoolTimer(pool); err != nil {
			return err
		}
	}

	return nil
}

// sameClient compares UID if either side has one, else hardware address —
// the conflict test of §4.5 step 1.
func sameClient(existing, sample *Lease) bool {
	if len(existing.UID) > 0 || len(sample.UID) > 0 {
		return string(existing.UID) == string(sample.UID)
	}
	return existing.HardwareAddr.Type == sample.HardwareAddr.Type &&
		string(existing.HardwareAddr.Addr) == string(sample.HardwareAddr.Addr)
}

// makeBindingStateTransition fires on_expiry or on_release exactly once
// per logical transition, unconditionally advances binding_state to
// next_binding_state, and computes the new terminal next state (§4.5).
func (r *Registry) makeBindingStateTransition(l *Lease) {
	pool, _ := r.topo.Pool(l.Pool)
	var peer *topology.FailoverPeer
	if pool != nil {
		peer = pool.FailoverPeer
	}

	from, to := l.BindingState, l.NextBindingState
	changing := from != to

	expiring := changing && ((peer != nil && (from == state.Expired || from == state.Active) && (to == state.Free || to == state.Backup)) ||
		(peer == nil && from == state.Active && to != state.Released))
	releasing := changing && ((peer != nil && from == state.Released && (to == state.Free || to == state.Backup)) ||
		(peer == nil && from == state.Active && to == state.Released))

	switch {
	case expiring:
		if r.ddns != nil {
			_ = r.ddns.Removals(l, true)
		}
		if l.OnExpiry != nil {
			_ = l.OnExpiry.Run(&HookContext{Lease: l, Reason: "expiry"})
		}
		l.OnExpiry = nil
		l.OnRelease = nil
		r.unbindClient(l)
		l.Tstp = l.Ends
	case releasing:
		if r.ddns != nil {
			_ = r.ddns.Removals(l, true)
		}
		if l.OnRelease != nil {
			_ = l.OnRelease.Run(&HookContext{Lease: l, Reason: "release"})
		}
		l.OnRelease = nil
		r.unbindClient(l)
		l.Tstp = l.Ends
	}

	l.BindingState = to

	switch l.BindingState {
	case state.Active:
		if peer != nil {
			l.NextBindingState = state.Expired
		} else {
			l.NextBindingState = state.Free
		}
	case state.Expired, state.Released, state.Abandoned, state.Reset:
		l.NextBindingState = state.Free
		if peer != nil && peer.State == topology.PeerStatePartnerDown {
			l.Tsfp = peer.Stos.Add(peer.MCLT)
		}
	case state.Free, state.Backup:
		l.NextBindingState = l.BindingState
	}
}

// unbindClient drops the billing reference and the client-visible fields
// a lease sheds on leaving ACTIVE or being released (§4.5).
func (r *Registry) unbindClient(l *Lease) {
	if r.classes != nil && l.Class != "" {
		r.classes.Unbill(l.Class)
	}
	l.Class = ""
	l.AgentOptions = nil
	l.ClientHostname = ""
	l.Host = ""
}

// timeNow is a seam so tests can control "now" without wall-clock races;
// production callers get time.Now.
var timeNow = time.Now
