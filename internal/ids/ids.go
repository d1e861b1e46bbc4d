// Package ids defines the typed, comparable handles used in place of the
// raw pointers of the original C implementation. Every cross-structure
// back-reference (a lease's pool, a host's sibling in a hash chain, a
// pool queue's head) is one of these IDs rather than a pointer, so that
// packages can refer to each other's entities without importing each
// other's types and without risking reference cycles between owning
// index and transient back-pointer.
package ids

// LeaseID identifies a lease by its IP address in canonical string form
// (net.IP.String()), which is already the lease's natural unique key
// (invariant 4: one lease per IP).
type LeaseID string

// HostID identifies a host reservation. Hosts are keyed by name, but the
// ID is independent of name so that name changes (via rewrite-in-place)
// don't invalidate outstanding references.
type HostID string

// SubnetID identifies a subnet.
type SubnetID string

// SharedNetworkID identifies a shared network.
type SharedNetworkID string

// PoolID identifies an address pool.
type PoolID string

// ClassID identifies a class or subclass.
type ClassID string

// Zero value helpers: the empty string represents "no reference" for every
// ID type above, matching a nil pointer in the original.

// Valid reports whether id is a non-empty lease reference.
func (id LeaseID) Valid() bool { return id != "" }

// Valid reports whether id is a non-empty host reference.
func (id HostID) Valid() bool { return id != "" }

// Valid reports whether id is a non-empty subnet reference.
func (id SubnetID) Valid() bool { return id != "" }

// Valid reports whether id is a non-empty shared-network reference.
func (id SharedNetworkID) Valid() bool { return id != "" }

// Valid reports whether id is a non-empty pool reference.
func (id PoolID) Valid() bool { return id != "" }

// Valid reports whether id is a non-empty class reference.
func (id ClassID) Valid() bool { return id != "" }
