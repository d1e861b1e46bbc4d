package lease

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasedb/internal/state"
)

func newIndexTestRegistry() *Registry {
	return NewRegistry(nil, nil, nil, nil, nil, nil)
}

func TestPreferenceGroupOrdering(t *testing.T) {
	assert.Equal(t, 0, preferenceGroup(state.Active))
	assert.Equal(t, 1, preferenceGroup(state.Expired))
	assert.Equal(t, 1, preferenceGroup(state.Released))
	assert.Equal(t, 2, preferenceGroup(state.Free))
	assert.Equal(t, 3, preferenceGroup(state.Abandoned))
}

func TestPreferredActiveLongestEndsFirst(t *testing.T) {
	now := time.Now()
	cur := &Lease{BindingState: state.Active, Ends: now.Add(2 * time.Hour)}
	candidate := &Lease{BindingState: state.Active, Ends: now.Add(1 * time.Hour)}
	assert.True(t, preferred(cur, candidate))
	assert.False(t, preferred(candidate, cur))
}

func TestPreferredExpiredLargestClttFirst(t *testing.T) {
	now := time.Now()
	cur := &Lease{BindingState: state.Expired, Cltt: now.Add(time.Hour)}
	candidate := &Lease{BindingState: state.Expired, Cltt: now}
	assert.True(t, preferred(cur, candidate))
}

func TestPreferredAbandonedAlwaysLast(t *testing.T) {
	cur := &Lease{BindingState: state.Abandoned}
	candidate := &Lease{BindingState: state.Free}
	assert.False(t, preferred(cur, candidate))
	assert.True(t, preferred(candidate, cur))
}

func TestIndexIntoSecondaryIndexesOrdersUIDChainByPreference(t *testing.T) {
	r := newIndexTestRegistry()
	now := time.Now()
	uid := []byte("client-1")

	short := &Lease{IP: net.ParseIP("10.0.0.1"), UID: uid, BindingState: state.Active, Ends: now.Add(1 * time.Hour)}
	long := &Lease{IP: net.ParseIP("10.0.0.2"), UID: uid, BindingState: state.Active, Ends: now.Add(2 * time.Hour)}
	r.leases[short.ID()] = short
	r.leases[long.ID()] = long

	r.indexIntoSecondaryIndexes(short)
	r.indexIntoSecondaryIndexes(long)

	head, ok := r.FindLeaseByUID(uid)
	require.True(t, ok)
	assert.Equal(t, long.ID(), head.ID())
	next, ok := r.NextUID(head)
	require.True(t, ok)
	assert.Equal(t, short.ID(), next.ID())
}

func TestWithdrawFromSecondaryIndexesPrunesHeadAndPromotesSibling(t *testing.T) {
	r := newIndexTestRegistry()
	uid := []byte("client-1")
	l1 := &Lease{IP: net.ParseIP("10.0.0.1"), UID: uid, BindingState: state.Free}
	l2 := &Lease{IP: net.ParseIP("10.0.0.2"), UID: uid, BindingState: state.Free}
	r.leases[l1.ID()] = l1
	r.leases[l2.ID()] = l2
	r.indexIntoSecondaryIndexes(l1)
	r.indexIntoSecondaryIndexes(l2)

	head, ok := r.FindLeaseByUID(uid)
	require.True(t, ok)
	require.Equal(t, l1.ID(), head.ID())

	r.withdrawFromSecondaryIndexes(head)
	newHead, ok := r.FindLeaseByUID(uid)
	require.True(t, ok)
	assert.Equal(t, l2.ID(), newHead.ID())
}

func TestHWKeyExcludesInfiniBand(t *testing.T) {
	l := &Lease{}
	l.HardwareAddr.Type = hardwareTypeInfiniBand
	l.HardwareAddr.Addr = []byte{1}
	assert.Nil(t, l.HWKey())
}
