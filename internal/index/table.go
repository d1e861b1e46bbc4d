// Package index implements the bucketed hash tables of §4.1: a typed hash
// map from a byte-string key to the head of an intra-bucket collision
// chain. The table itself only ever knows about the chain head; walking
// to siblings is the caller's job via whatever sibling field its entity
// type carries (n_uid, n_hw, n_ipaddr in the spec's terms) — this is the
// "arenas + indices" rewrite of the original's intrusive pointer chains
// (see the design notes on global singletons and intrusive lists).
package index

import "sync"

// Table maps a byte-string key to the ID of the chain head registered
// under that key. ID is typically one of the leasedb/internal/ids types.
//
// Allocation of the underlying map never fails in Go the way the
// original's hash-table creation could; callers that need the "fatal on
// table creation failure" semantics of §4.1 only need to call New, which
// always succeeds, so that failure mode does not apply to this
// reimplementation — noted here rather than silently dropped.
type Table[ID comparable] struct {
	mu      sync.RWMutex
	buckets map[string]ID
}

// New creates an empty index table.
func New[ID comparable]() *Table[ID] {
	return &Table[ID]{buckets: make(map[string]ID)}
}

// Head returns the ID registered as the chain head for key.
func (t *Table[ID]) Head(key []byte) (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.buckets[string(key)]
	return id, ok
}

// ReplaceHead deletes any existing head entry for key and installs id as
// the new head. This mirrors the delete+add pair the original hash API
// forces whenever an entity is inserted at the head of its bucket chain.
func (t *Table[ID]) ReplaceHead(key []byte, id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets[string(key)] = id
}

// Remove deletes the head entry for key, if one is registered. Reports
// whether an entry was actually present.
func (t *Table[ID]) Remove(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.buckets[string(key)]
	if ok {
		delete(t.buckets, string(key))
	}
	return ok
}

// Len returns the number of distinct bucket keys currently populated.
func (t *Table[ID]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}

// Keys returns a snapshot of all populated bucket keys.
func (t *Table[ID]) Keys() [][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][]byte, 0, len(t.buckets))
	for k := range t.buckets {
		out = append(out, []byte(k))
	}
	return out
}

// Heads returns a snapshot of all chain-head IDs currently registered.
func (t *Table[ID]) Heads() []ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ID, 0, len(t.buckets))
	for _, id := range t.buckets {
		out = append(out, id)
	}
	return out
}
