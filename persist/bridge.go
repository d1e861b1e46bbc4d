package persist

import (
	"leasedb/classes"
	"leasedb/host"
	"leasedb/lease"
)

// Bridge is the persistence contract of §6: write_host, write_lease,
// write_named_billing_class, write_group, and commit_leases. It is
// exactly the union of host.Journal, lease.Journal, and
// classes.JournalWriter plus write_group, so a single concrete
// implementation can be handed to all three registries.
type Bridge interface {
	host.Journal
	lease.Journal
	classes.JournalWriter

	// WriteGroup journals a group-statement scope. No registry in this
	// module calls it directly — group declarations are produced by the
	// config-language parser external to this module (§1) — but it is
	// part of the journal contract §6 names, so any bridge implementation
	// must support it for that external caller.
	WriteGroup(g *host.Group) error
}
