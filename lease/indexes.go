package lease

import (
	"leasedb/internal/ids"
	"leasedb/internal/index"
	"leasedb/internal/state"
)

// preferenceGroup buckets a binding state into the four-way ordering of
// §4.7: ACTIVE first, then EXPIRED/RELEASED, then everything else except
// ABANDONED, then ABANDONED last.
func preferenceGroup(s state.BindingState) int {
	switch s {
	case state.Active:
		return 0
	case state.Expired, state.Released:
		return 1
	case state.Abandoned:
		return 3
	default:
		return 2
	}
}

// preferred reports whether cur should stay ahead of candidate in a UID or
// HW chain (§4.7): different groups order by group number; within the
// ACTIVE group the longer ends wins; every other group orders by larger
// cltt.
func preferred(cur, candidate *Lease) bool {
	gc, gn := preferenceGroup(cur.BindingState), preferenceGroup(candidate.BindingState)
	if gc != gn {
		return gc < gn
	}
	if gc == 0 {
		return !cur.Ends.Before(candidate.Ends)
	}
	return !cur.Cltt.Before(candidate.Cltt)
}

// insertPreferred inserts l into table's chain under key at the position
// preferred orders it into, reseating the hash head (delete+add) if the
// insertion point is the head (§4.1, §4.7).
func (r *Registry) insertPreferred(table *index.Table[ids.LeaseID], key []byte, l *Lease, sibling func(*Lease) *ids.LeaseID) {
	if key == nil {
		return
	}
	head, ok := table.Head(key)
	if !ok {
		table.ReplaceHead(key, l.ID())
		return
	}
	headLease := r.leases[head]
	if !preferred(headLease, l) {
		*sibling(l) = head
		table.ReplaceHead(key, l.ID())
		return
	}
	prev := headLease
	for {
		nextID := *sibling(prev)
		if nextID == "" {
			*sibling(prev) = l.ID()
			return
		}
		next := r.leases[nextID]
		if !preferred(next, l) {
			*sibling(l) = nextID
			*sibling(prev) = l.ID()
			return
		}
		prev = next
	}
}

// pruneFromChain removes l from table's chain under key, promoting its
// sibling to head if l was the chain head.
func (r *Registry) pruneFromChain(table *index.Table[ids.LeaseID], key []byte, l *Lease, sibling func(*Lease) *ids.LeaseID) {
	if key == nil {
		return
	}
	head, ok := table.Head(key)
	if !ok {
		return
	}
	if head == l.ID() {
		if succ := *sibling(l); succ != "" {
			table.ReplaceHead(key, succ)
		} else {
			table.Remove(key)
		}
		*sibling(l) = ""
		return
	}
	prev := r.leases[head]
	for {
		cur := *sibling(prev)
		if cur == "" {
			return
		}
		if cur == l.ID() {
			*sibling(prev) = *sibling(l)
			*sibling(l) = ""
			return
		}
		prev = r.leases[cur]
	}
}

func uidSibling(l *Lease) *ids.LeaseID { return &l.NUID }
func hwSibling(l *Lease) *ids.LeaseID { return &l.NHW }

// withdrawFromSecondaryIndexes removes l from the UID and HW indexes
// (§4.5 supersede_lease step 2).
func (r *Registry) withdrawFromSecondaryIndexes(l *Lease) {
	if key := l.UIDKey(); key != nil {
		r.pruneFromChain(r.byUID, key, l, uidSibling)
	}
	if key := l.HWKey(); key != nil {
		r.pruneFromChain(r.byHW, key, l, hwSibling)
	}
}

// indexIntoSecondaryIndexes (re-)inserts l into the UID and HW indexes
// according to its current key fields.
func (r *Registry) indexIntoSecondaryIndexes(l *Lease) {
	if key := l.UIDKey(); key != nil {
		r.insertPreferred(r.byUID, key, l, uidSibling)
	}
	if key := l.HWKey(); key != nil {
		r.insertPreferred(r.byHW, key, l, hwSibling)
	}
}
