package leasedb

import (
	"fmt"
	"io"
	"sort"

	"leasedb/internal/state"
)

// Dump writes a whole-database consistency report to w: every pool's
// queue lengths and counters, every class's billed-lease count, and the
// total host/lease counts. It is the operator-debugging counterpart to
// the original's dump_subnets()/free_everything() pass (§12) — for humans
// reading logs, not a wire format.
func (db *Database) Dump(w io.Writer) error {
	pools := db.Topology.Pools()
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })

	for _, p := range pools {
		if _, err := fmt.Fprintf(w, "pool %s: leases=%d free=%d backup=%d next_event=%s\n",
			p.ID, p.LeaseCount, p.FreeLeases, p.BackupLeases, p.NextEventTime); err != nil {
			return err
		}
		for q := state.Queue(0); q < state.NumPoolQueues; q++ {
			if n := p.Len(q); n > 0 {
				if _, err := fmt.Fprintf(w, "  %s: %d\n", q, n); err != nil {
					return err
				}
			}
		}
	}

	classes := db.Classes.Classes()
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	for _, c := range classes {
		if _, err := fmt.Fprintf(w, "class %s: billed=%d\n", c.Name, c.LeasesBilled); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "totals: hosts=%d leases=%d\n", len(db.Hosts.All()), len(db.Leases.All()))
	return err
}
