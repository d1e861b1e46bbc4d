package leasedb

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasedb/host"
	"leasedb/topology"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(t.TempDir(), "leasedb.db", Collaborators{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, "leasedb.db", Collaborators{})
	require.NoError(t, err)
	defer db.Close()
	assert.FileExists(t, filepath.Join(dir, "leasedb.db"))
}

func TestRestoreRunsExpiryReconciliation(t *testing.T) {
	db := newTestDatabase(t)
	pool := topology.NewPool("p1", "")
	db.Topology.AddPool(pool)

	require.NoError(t, db.Restore(context.Background()))
}

func TestPersistDynamicHostsSkipsStaticAndDeletedHosts(t *testing.T) {
	db := newTestDatabase(t)

	dynamic := &host.Host{Name: "dyn", Flags: host.FlagDynamic}
	require.NoError(t, db.Hosts.EnterHost(dynamic, false, false))

	static := &host.Host{Name: "stat", Flags: host.FlagStatic}
	require.NoError(t, db.Hosts.EnterHost(static, false, false))

	deleted := &host.Host{Name: "gone", Flags: host.FlagDynamic}
	require.NoError(t, db.Hosts.EnterHost(deleted, false, false))
	require.NoError(t, db.Hosts.DeleteHost(deleted, false))

	n := db.PersistDynamicHosts()
	assert.Equal(t, 1, n)
}

func TestDumpWritesPoolAndClassSummaries(t *testing.T) {
	db := newTestDatabase(t)
	pool := topology.NewPool("p1", "")
	db.Topology.AddPool(pool)
	db.Topology.AddSubnet(&topology.Subnet{ID: "s1", Net: net.ParseIP("10.0.0.0").To4(), Netmask: net.CIDRMask(24, 32)})

	_, err := db.Leases.NewAddressRange(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), "s1", "p1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, db.Dump(&buf))
	out := buf.String()
	assert.Contains(t, out, "pool p1")
	assert.Contains(t, out, "totals: hosts=0 leases=2")
}
