package topology

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasedb/internal/ids"
	"leasedb/internal/state"
)

func TestSubnetContains(t *testing.T) {
	s := &Subnet{
		Net:     net.ParseIP("10.0.0.0").To4(),
		Netmask: net.CIDRMask(24, 32),
	}

	assert.True(t, s.Contains(net.ParseIP("10.0.0.10")))
	assert.False(t, s.Contains(net.ParseIP("10.0.1.10")))
}

func TestAddSubnetChainsSharedNetworkSiblings(t *testing.T) {
	r := NewRegistry()
	sn := &SharedNetwork{ID: "sn1"}
	r.AddSharedNetwork(sn)

	s1 := &Subnet{ID: "s1", SharedNetwork: "sn1", Net: net.ParseIP("10.0.0.0").To4(), Netmask: net.CIDRMask(24, 32)}
	s2 := &Subnet{ID: "s2", SharedNetwork: "sn1", Net: net.ParseIP("10.0.1.0").To4(), Netmask: net.CIDRMask(24, 32)}
	r.AddSubnet(s1)
	r.AddSubnet(s2)

	require.Equal(t, ids.SubnetID("s2"), sn.firstSubnet)
	assert.Equal(t, ids.SubnetID("s1"), s2.NextSibling)
}

func TestFindSubnetForIP(t *testing.T) {
	r := NewRegistry()
	r.AddSubnet(&Subnet{ID: "s1", Net: net.ParseIP("10.0.0.0").To4(), Netmask: net.CIDRMask(24, 32)})
	r.AddSubnet(&Subnet{ID: "s2", Net: net.ParseIP("10.0.1.0").To4(), Netmask: net.CIDRMask(24, 32)})

	s, ok := r.FindSubnetForIP(net.ParseIP("10.0.1.5"))
	require.True(t, ok)
	assert.Equal(t, ids.SubnetID("s2"), s.ID)

	_, ok = r.FindSubnetForIP(net.ParseIP("10.0.2.5"))
	assert.False(t, ok)
}

func TestPoolQueueAccessorsAndCounters(t *testing.T) {
	p := NewPool("p1", "")
	assert.Equal(t, MinTime, p.NextEventTime)

	p.SetHead(state.QueueFree, "10.0.0.1")
	p.SetTail(state.QueueFree, "10.0.0.1")
	p.AdjustLen(state.QueueFree, 1)
	assert.Equal(t, 1, p.Len(state.QueueFree))
	assert.Equal(t, ids.LeaseID("10.0.0.1"), p.Head(state.QueueFree))
}

func TestPoolLastInsertFastPath(t *testing.T) {
	p := NewPool("p1", "")
	_, _, ok := p.LastInsert()
	assert.False(t, ok)

	p.SetLastInsert(state.QueueActive, "10.0.0.5")
	q, id, ok := p.LastInsert()
	assert.True(t, ok)
	assert.Equal(t, state.QueueActive, q)
	assert.Equal(t, ids.LeaseID("10.0.0.5"), id)

	p.ClearLastInsert()
	_, _, ok = p.LastInsert()
	assert.False(t, ok)
}

func TestPoolTimerRunningGuard(t *testing.T) {
	p := NewPool("p1", "")
	assert.False(t, p.TimerRunning())
	p.SetTimerRunning(true)
	assert.True(t, p.TimerRunning())
}
