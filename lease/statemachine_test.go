package lease

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasedb/classes"
	"leasedb/internal/state"
	"leasedb/topology"
)

type fakeJournal struct {
	written   []string
	committed int
}

func (f *fakeJournal) WriteLease(l *Lease) error {
	f.written = append(f.written, l.IP.String())
	return nil
}

func (f *fakeJournal) CommitLeases() error {
	f.committed++
	return nil
}

type fakeFailover struct {
	updates []string
}

func (f *fakeFailover) QueueUpdate(l *Lease, immediate bool) error {
	f.updates = append(f.updates, l.IP.String())
	return nil
}

func newStatemachineRegistry(t *testing.T) (*Registry, *topology.Registry, *topology.Pool, *fakeJournal, *fakeFailover) {
	t.Helper()
	topo := topology.NewRegistry()
	pool := topology.NewPool("p1", "")
	topo.AddPool(pool)
	j := &fakeJournal{}
	fo := &fakeFailover{}
	classReg := classes.NewRegistry(nil)
	r := NewRegistry(topo, classReg, j, fo, nil, nil)
	return r, topo, pool, j, fo
}

func activeLease(ip string, ends time.Time) *Lease {
	return &Lease{IP: net.ParseIP(ip), BindingState: state.Active, NextBindingState: state.Active, Ends: ends, Pool: "p1"}
}

func TestSupersedeLeaseRejectsImmediateWithoutCommit(t *testing.T) {
	r, _, _, _, _ := newStatemachineRegistry(t)
	l := freeLease("10.0.0.1", time.Now())
	l.Pool = "p1"
	err := r.SupersedeLease(l, nil, false, false, true, false)
	assert.Error(t, err)
}

func TestSupersedeLeaseStaticSampleIsNoOp(t *testing.T) {
	r, _, pool, _, _ := newStatemachineRegistry(t)
	l := freeLease("10.0.0.1", time.Now())
	l.Pool = "p1"
	r.leases[l.ID()] = l
	r.enqueue(pool, l)

	sample := &Lease{Flags: FlagStatic}
	require.NoError(t, r.SupersedeLease(l, sample, true, false, false, false))
	assert.Equal(t, state.Free, l.BindingState)
}

func TestSupersedeLeaseMovesBetweenQueuesAndJournals(t *testing.T) {
	r, _, pool, j, fo := newStatemachineRegistry(t)
	now := time.Now()
	l := freeLease("10.0.0.1", now)
	l.Pool = "p1"
	r.leases[l.ID()] = l
	r.enqueue(pool, l)

	sample := &Lease{
		Starts:           now,
		Ends:             now.Add(time.Hour),
		NextBindingState: state.Active,
		UID:              []byte("client-1"),
	}
	require.NoError(t, r.SupersedeLease(l, sample, true, true, false, false))

	assert.Equal(t, state.Active, l.BindingState)
	assert.Equal(t, 0, pool.Len(state.QueueFree))
	assert.Equal(t, 1, pool.Len(state.QueueActive))
	assert.Contains(t, j.written, "10.0.0.1")
	assert.Contains(t, fo.updates, "10.0.0.1")

	found, ok := r.FindLeaseByUID([]byte("client-1"))
	require.True(t, ok)
	assert.Equal(t, l.ID(), found.ID())
}

func TestSupersedeLeaseNoSyncSkipsCommit(t *testing.T) {
	r, _, pool, j, _ := newStatemachineRegistry(t)
	now := time.Now()
	l := freeLease("10.0.0.1", now)
	l.Pool = "p1"
	r.leases[l.ID()] = l
	r.enqueue(pool, l)
	r.EnablePhase(PhaseNoSync)

	sample := &Lease{Ends: now.Add(time.Hour), NextBindingState: state.Active}
	require.NoError(t, r.SupersedeLease(l, sample, true, false, false, false))
	assert.Len(t, j.written, 1)
	assert.Equal(t, 0, j.committed)
}

func TestSupersedeLeaseJustMoveItRunsTransition(t *testing.T) {
	r, _, pool, _, _ := newStatemachineRegistry(t)
	past := time.Now().Add(-time.Hour)
	l := activeLease("10.0.0.1", past)
	l.NextBindingState = state.Free
	r.leases[l.ID()] = l
	r.enqueue(pool, l)

	require.NoError(t, r.SupersedeLease(l, nil, true, true, true, true))
	assert.Equal(t, state.Free, l.BindingState)
	assert.Equal(t, 1, pool.Len(state.QueueFree))
	assert.Equal(t, 0, pool.Len(state.QueueActive))
}

func TestSupersedeLeaseBillingClassTransfersAndCounts(t *testing.T) {
	r, _, pool, _, _ := newStatemachineRegistry(t)
	classReg := r.classes
	gold := &classes.Class{Name: "gold"}
	require.NoError(t, classReg.EnterClass(gold, false, false))

	now := time.Now()
	l := freeLease("10.0.0.1", now)
	l.Pool = "p1"
	r.leases[l.ID()] = l
	r.enqueue(pool, l)

	sample := &Lease{Ends: now.Add(time.Hour), NextBindingState: state.Active, Class: gold.ID}
	require.NoError(t, r.SupersedeLease(l, sample, true, false, false, false))

	assert.Equal(t, gold.ID, l.Class)
	assert.Equal(t, 1, gold.LeasesBilled)
}

func TestSameClientComparesUIDThenHardwareAddr(t *testing.T) {
	a := &Lease{UID: []byte("x")}
	b := &Lease{UID: []byte("x")}
	assert.True(t, sameClient(a, b))

	c := &Lease{UID: []byte("y")}
	assert.False(t, sameClient(a, c))
}

func TestMakeBindingStateTransitionActiveToFreeWithoutPeerUnbindsClient(t *testing.T) {
	r, _, pool, _, _ := newStatemachineRegistry(t)
	l := activeLease("10.0.0.1", time.Now())
	l.Pool = "p1"
	l.NextBindingState = state.Free
	l.ClientHostname = "foo"
	r.leases[l.ID()] = l
	_ = pool

	r.makeBindingStateTransition(l)
	assert.Equal(t, state.Free, l.BindingState)
	assert.Equal(t, state.Free, l.NextBindingState)
	assert.Equal(t, "", l.ClientHostname)
}

func TestMakeBindingStateTransitionActiveWithPeerGoesToExpired(t *testing.T) {
	r, topo, pool, _, _ := newStatemachineRegistry(t)
	pool.FailoverPeer = &topology.FailoverPeer{IAm: topology.RolePrimary, State: topology.PeerStateNormal}
	_ = topo
	l := activeLease("10.0.0.1", time.Now())
	l.Pool = "p1"
	l.NextBindingState = state.Expired
	r.leases[l.ID()] = l

	r.makeBindingStateTransition(l)
	assert.Equal(t, state.Expired, l.BindingState)
	assert.Equal(t, state.Free, l.NextBindingState)
}
