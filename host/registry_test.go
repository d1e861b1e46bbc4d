package host

import (
	"errors"
	"net"
	"testing"

	d4 "github.com/krolaw/dhcp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasedb/hostid"
	"leasedb/optioncache"
	"leasedb/topology"
)

func newTestRegistry() *Registry {
	return NewRegistry(nil, hostid.NewRegistry(), nil)
}

func TestEnterHostAndFindByName(t *testing.T) {
	r := newTestRegistry()
	h := &Host{Name: "host1"}
	require.NoError(t, r.EnterHost(h, false, false))

	found, ok := r.FindHostByName("host1")
	require.True(t, ok)
	assert.Equal(t, h.ID, found.ID)
}

func TestEnterHostDuplicateNameRejected(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.EnterHost(&Host{Name: "host1"}, false, false))
	err := r.EnterHost(&Host{Name: "host1"}, false, false)
	assert.Error(t, err)
}

func TestEnterHostReplacesDeletedEntry(t *testing.T) {
	r := newTestRegistry()
	h1 := &Host{Name: "host1"}
	require.NoError(t, r.EnterHost(h1, false, false))
	require.NoError(t, r.DeleteHost(h1, false))

	h2 := &Host{Name: "host1"}
	require.NoError(t, r.EnterHost(h2, false, false))

	found, ok := r.FindHostByName("host1")
	require.True(t, ok)
	assert.Equal(t, h2.ID, found.ID)
}

func TestEnterHostIndexesByHWAndUID(t *testing.T) {
	r := newTestRegistry()
	h := &Host{
		Name:             "host1",
		Interface:        HWAddr{Type: 1, Addr: []byte{0xde, 0xad, 0xbe, 0xef, 0, 1}},
		ClientIdentifier: []byte("client-1"),
	}
	require.NoError(t, r.EnterHost(h, false, false))

	byHW, ok := r.FindHostsByHAddr(1, []byte{0xde, 0xad, 0xbe, 0xef, 0, 1})
	require.True(t, ok)
	assert.Equal(t, h.ID, byHW.ID)

	byUID, ok := r.FindHostsByUID([]byte("client-1"))
	require.True(t, ok)
	assert.Equal(t, h.ID, byUID.ID)
}

func TestEnterHostChainsSharedHWAddress(t *testing.T) {
	r := newTestRegistry()
	hw := HWAddr{Type: 1, Addr: []byte{1, 2, 3, 4, 5, 6}}
	h1 := &Host{Name: "host1", Interface: hw}
	h2 := &Host{Name: "host2", Interface: hw}
	require.NoError(t, r.EnterHost(h1, false, false))
	require.NoError(t, r.EnterHost(h2, false, false))

	head, ok := r.FindHostsByHAddr(1, hw.Addr)
	require.True(t, ok)
	assert.Equal(t, h1.ID, head.ID)

	next, ok := r.Next(head)
	require.True(t, ok)
	assert.Equal(t, h2.ID, next.ID)
}

func TestDeleteHostIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	h := &Host{Name: "host1"}
	require.NoError(t, r.EnterHost(h, false, false))

	require.NoError(t, r.DeleteHost(h, false))
	assert.True(t, h.Deleted())

	// A second delete on an already-deleted host must be a no-op, not an
	// error and not a double flag toggle.
	require.NoError(t, r.DeleteHost(h, false))
	assert.True(t, h.Deleted())
}

func TestDeleteHostPrunesIndexesAndPromotesSuccessor(t *testing.T) {
	r := newTestRegistry()
	hw := HWAddr{Type: 1, Addr: []byte{9, 9, 9, 9, 9, 9}}
	h1 := &Host{Name: "host1", Interface: hw}
	h2 := &Host{Name: "host2", Interface: hw}
	require.NoError(t, r.EnterHost(h1, false, false))
	require.NoError(t, r.EnterHost(h2, false, false))

	require.NoError(t, r.DeleteHost(h1, false))

	head, ok := r.FindHostsByHAddr(1, hw.Addr)
	require.True(t, ok)
	assert.Equal(t, h2.ID, head.ID)
}

func TestChangeHostUIDMovesIndexEntry(t *testing.T) {
	r := newTestRegistry()
	h := &Host{Name: "host1", ClientIdentifier: []byte("old")}
	require.NoError(t, r.EnterHost(h, false, false))

	r.ChangeHostUID(h, []byte("new"))

	_, ok := r.FindHostsByUID([]byte("old"))
	assert.False(t, ok)

	found, ok := r.FindHostsByUID([]byte("new"))
	require.True(t, ok)
	assert.Equal(t, h.ID, found.ID)
}

type fixedAddrStub struct {
	addrs []byte
	err   error
}

func (f *fixedAddrStub) Evaluate() ([]byte, error) { return f.addrs, f.err }

// relayPacketStub is a minimal optioncache.Packet: a chain of nested
// relay frames, starting at the outermost frame, with each Relay() call
// descending one frame until the innermost is reached.
type relayPacketStub struct {
	opts  optioncache.Options
	inner *relayPacketStub
}

func (p *relayPacketStub) Options() optioncache.Options { return p.opts }

func (p *relayPacketStub) Relay() (optioncache.Packet, bool) {
	if p.inner == nil {
		return nil, false
	}
	return p.inner, true
}

func TestFindHostsByOptionMatchesRelayDepth(t *testing.T) {
	r := newTestRegistry()
	h := &Host{
		Name:         "host1",
		HostIDOption: &HostIDOption{Option: d4.OptionCode(37), RelayDepth: 2},
		HostIDValue:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	require.NoError(t, r.EnterHost(h, false, false))

	innermost := &relayPacketStub{opts: optioncache.Options{d4.OptionCode(37): {0xDE, 0xAD, 0xBE, 0xEF}}}
	middle := &relayPacketStub{inner: innermost}
	outer := &relayPacketStub{inner: middle}

	found, ok := r.FindHostsByOptionFromPacket(outer)
	require.True(t, ok)
	assert.Equal(t, h.ID, found.ID)
}

func TestFindHostsByOptionMissesWhenRelayDepthUnreachable(t *testing.T) {
	r := newTestRegistry()
	h := &Host{
		Name:         "host1",
		HostIDOption: &HostIDOption{Option: d4.OptionCode(37), RelayDepth: 2},
		HostIDValue:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	require.NoError(t, r.EnterHost(h, false, false))

	innermost := &relayPacketStub{opts: optioncache.Options{d4.OptionCode(37): {0xDE, 0xAD, 0xBE, 0xEF}}}
	outer := &relayPacketStub{inner: innermost}

	_, ok := r.FindHostsByOptionFromPacket(outer)
	assert.False(t, ok)
}

func TestFindHostsByOptionDirectLookup(t *testing.T) {
	r := newTestRegistry()
	h := &Host{
		Name:         "host1",
		HostIDOption: &HostIDOption{Option: d4.OptionCode(82), RelayDepth: 0},
		HostIDValue:  []byte("circuit-1"),
	}
	require.NoError(t, r.EnterHost(h, false, false))

	found, ok := r.FindHostsByOption(d4.OptionCode(82), 0, []byte("circuit-1"))
	require.True(t, ok)
	assert.Equal(t, h.ID, found.ID)

	_, ok = r.FindHostsByOption(d4.OptionCode(82), 0, []byte("circuit-2"))
	assert.False(t, ok)
}

func TestFindHostForNetworkMatchesSharedNetworkSubnet(t *testing.T) {
	r := newTestRegistry()
	topo := topology.NewRegistry()
	sn := &topology.SharedNetwork{ID: "sn1"}
	topo.AddSharedNetwork(sn)
	topo.AddSubnet(&topology.Subnet{ID: "s1", SharedNetwork: "sn1", Net: net.ParseIP("10.0.0.0").To4(), Netmask: net.CIDRMask(24, 32)})

	h := &Host{Name: "host1", FixedAddr: &fixedAddrStub{addrs: net.ParseIP("10.0.0.42").To4()}}

	var out *Host
	subnet, addr, ok := r.FindHostForNetwork(h, sn, topo, &out)
	require.True(t, ok)
	assert.Equal(t, "s1", string(subnet.ID))
	assert.True(t, addr.Equal(net.ParseIP("10.0.0.42")))
	assert.Same(t, h, out)
}

func TestFindHostForNetworkSkipsEvaluationErrors(t *testing.T) {
	r := newTestRegistry()
	topo := topology.NewRegistry()
	sn := &topology.SharedNetwork{ID: "sn1"}
	topo.AddSharedNetwork(sn)
	topo.AddSubnet(&topology.Subnet{ID: "s1", SharedNetwork: "sn1", Net: net.ParseIP("10.0.0.0").To4(), Netmask: net.CIDRMask(24, 32)})

	h := &Host{Name: "host1", FixedAddr: &fixedAddrStub{err: errors.New("boom")}}

	var out *Host
	_, _, ok := r.FindHostForNetwork(h, sn, topo, &out)
	assert.False(t, ok)
}
