package host

import (
	"log/slog"
	"net"

	"github.com/google/uuid"
	d4 "github.com/krolaw/dhcp4"

	"leasedb/hostid"
	"leasedb/internal/dbresult"
	"leasedb/internal/ids"
	"leasedb/internal/index"
	"leasedb/optioncache"
	"leasedb/topology"
)

// Journal is the subset of the persistence bridge (§6) the host registry
// drives directly: write_host and commit_leases.
type Journal interface {
	WriteHost(h *Host) error
	CommitLeases() error
}

// Registry is the Host registry component (§4.2).
type Registry struct {
	hosts   map[ids.HostID]*Host
	byName  *index.Table[ids.HostID]
	byHW    *index.Table[ids.HostID]
	byUID   *index.Table[ids.HostID]
	hostIDs *hostid.Registry
	journal Journal
	log     *slog.Logger
}

// NewRegistry creates an empty host registry. journal may be nil for
// tests that don't exercise persistence.
func NewRegistry(journal Journal, hostIDs *hostid.Registry, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		hosts:   make(map[ids.HostID]*Host),
		byName:  index.New[ids.HostID](),
		byHW:    index.New[ids.HostID](),
		byUID:   index.New[ids.HostID](),
		hostIDs: hostIDs,
		journal: journal,
		log:     log,
	}
}

// resolve returns the *Host registered under id, or false. It does not
// filter out hosts carrying HOST_DECL_DELETED.
func (r *Registry) resolve(id ids.HostID) (*Host, bool) {
	h, ok := r.hosts[id]
	if !ok {
		return nil, false
	}
	return h, true
}

// findSupersedeClientIdentifier implements the group-statement scan of
// §4.2's EnterHost bullet on "supersede dhcp-client-identifier": a single
// unconditional match is applied; a conditional match or more than one
// unconditional match is logged and ignored.
func (r *Registry) findSupersedeClientIdentifier(g *Group) ([]byte, bool) {
	if g == nil {
		return nil, false
	}
	var unconditional [][]byte
	sawConditional := false
	for _, st := range g.Statements {
		if st.Kind != StatementSupersedeClientIdentifier {
			continue
		}
		if st.Conditional {
			sawConditional = true
			continue
		}
		unconditional = append(unconditional, st.Value)
	}
	if sawConditional {
		r.log.Warn("ignoring conditional supersede dhcp-client-identifier statement")
	}
	switch len(unconditional) {
	case 0:
		return nil, false
	case 1:
		return unconditional[0], true
	default:
		r.log.Warn("ignoring duplicate supersede dhcp-client-identifier statements", "count", len(unconditional))
		return nil, false
	}
}

// EnterHost registers host in the name index and, conditionally, the HW,
// UID, and option-value indexes (§4.2).
func (r *Registry) EnterHost(h *Host, dynamic, commit bool) error {
	if h.ID == "" {
		h.ID = ids.HostID(uuid.NewString())
	}

	if existingID, ok := r.byName.Head([]byte(h.Name)); ok {
		existing := r.hosts[existingID]
		switch {
		case existing.Deleted():
			if existing.Static() {
				h.Flags |= FlagStatic
			}
			h.Flags &^= FlagDeleted
			r.hosts[h.ID] = h
			r.byName.ReplaceHead([]byte(h.Name), h.ID)
		case existing == h || existingID == h.ID:
			if err := r.DeleteHost(existing, false); err != nil {
				return err
			}
			h.Flags &^= FlagDeleted
			r.hosts[h.ID] = h
			r.byName.ReplaceHead([]byte(h.Name), h.ID)
		default:
			return dbresult.Existsf("EnterHost", "host %q already exists", h.Name)
		}
	} else {
		r.hosts[h.ID] = h
		r.byName.ReplaceHead([]byte(h.Name), h.ID)
	}

	if value, ok := r.findSupersedeClientIdentifier(h.Group); ok {
		h.ClientIdentifier = value
	}

	if h.Interface.Set() {
		r.appendBehindHead(r.byHW, h.Interface.Key(), h)
	}
	if key := h.UIDKey(); key != nil {
		r.appendBehindHead(r.byUID, key, h)
	}
	if h.HostIDOption != nil && len(h.HostIDValue) > 0 {
		entry := r.hostIDs.GetOrCreate(h.HostIDOption.Option, h.HostIDOption.RelayDepth)
		r.appendBehindHead(entry.Values, h.optionKey(), h)
	}

	if dynamic && commit {
		h.Flags |= FlagDynamic
		if r.journal != nil {
			if err := r.journal.WriteHost(h); err != nil {
				return dbresult.IOErrorf("EnterHost", "write_host: %w", err)
			}
			if err := r.journal.CommitLeases(); err != nil {
				return dbresult.IOErrorf("EnterHost", "commit_leases: %w", err)
			}
		}
	}
	return nil
}

// appendBehindHead walks table's chain for key, starting at its head, and
// appends h behind the existing tail — deduplicating against h itself, as
// §4.2 requires ("dedup against hd itself"). If the table has no entry
// for key yet, h becomes the head directly.
func (r *Registry) appendBehindHead(table *index.Table[ids.HostID], key []byte, h *Host) {
	head, ok := table.Head(key)
	if !ok {
		table.ReplaceHead(key, h.ID)
		return
	}
	cur := head
	for {
		if cur == h.ID {
			return
		}
		node := r.hosts[cur]
		if node.NIPAddr == "" {
			node.NIPAddr = h.ID
			return
		}
		cur = node.NIPAddr
	}
}

// pruneIndex removes h from table's chain under key. It reports whether
// h was the chain head, in which case the hash entry has been removed and
// not replaced — callers decide whether to promote h's NIPAddr successor.
func (r *Registry) pruneIndex(table *index.Table[ids.HostID], key []byte, h *Host) (vacatedHead bool) {
	if key == nil {
		return false
	}
	head, ok := table.Head(key)
	if !ok {
		return false
	}
	if head == h.ID {
		table.Remove(key)
		return true
	}
	prev := head
	cur := r.hosts[head].NIPAddr
	for cur != "" {
		if cur == h.ID {
			r.hosts[prev].NIPAddr = h.NIPAddr
			return false
		}
		prev = cur
		cur = r.hosts[cur].NIPAddr
	}
	return false
}

// DeleteHost logically deletes host: the HOST_DECL_DELETED flag is set,
// and the host is pruned from every index it occupies (§4.2). It is
// idempotent: a second call on an already-deleted host is a no-op.
func (r *Registry) DeleteHost(h *Host, commit bool) error {
	if h.Deleted() {
		return nil
	}

	var hwVacated, uidVacated bool
	if h.Interface.Set() {
		hwVacated = r.pruneIndex(r.byHW, h.Interface.Key(), h)
	}
	if key := h.UIDKey(); key != nil {
		uidVacated = r.pruneIndex(r.byUID, key, h)
	}

	if (hwVacated || uidVacated) && h.NIPAddr != "" {
		succ := h.NIPAddr
		if hwVacated {
			r.byHW.ReplaceHead(h.Interface.Key(), succ)
		}
		if uidVacated {
			r.byUID.ReplaceHead(h.UIDKey(), succ)
		}
	}

	if h.HostIDOption != nil && len(h.HostIDValue) > 0 {
		if entry, ok := r.hostIDs.Find(h.HostIDOption.Option, h.HostIDOption.RelayDepth); ok {
			r.pruneIndex(entry.Values, h.optionKey(), h)
		}
		h.HostIDOption = nil
		h.HostIDValue = nil
	}

	if id, ok := r.byName.Head([]byte(h.Name)); ok && id == h.ID && !h.Static() {
		r.byName.Remove([]byte(h.Name))
	}

	h.Flags |= FlagDeleted

	if commit && r.journal != nil {
		if err := r.journal.WriteHost(h); err != nil {
			return dbresult.IOErrorf("DeleteHost", "write_host: %w", err)
		}
		if err := r.journal.CommitLeases(); err != nil {
			return dbresult.IOErrorf("DeleteHost", "commit_leases: %w", err)
		}
	}
	return nil
}

// ChangeHostUID atomically replaces host's UID: removes the old UID entry
// (if any) from the UID index, installs the new bytes, and re-adds it.
func (r *Registry) ChangeHostUID(h *Host, uid []byte) {
	if old := h.UIDKey(); old != nil {
		r.pruneIndex(r.byUID, old, h)
	}
	h.ClientIdentifier = append([]byte(nil), uid...)
	if key := h.UIDKey(); key != nil {
		r.appendBehindHead(r.byUID, key, h)
	}
}

// FindHostsByHAddr returns the chain head for hardware type htype and
// address haddr, if any (§4.2).
func (r *Registry) FindHostsByHAddr(htype byte, haddr []byte) (*Host, bool) {
	key := HWAddr{Type: htype, Addr: haddr}.Key()
	id, ok := r.byHW.Head(key)
	if !ok {
		return nil, false
	}
	return r.resolve(id)
}

// FindHostsByUID returns the chain head for uid, if any.
func (r *Registry) FindHostsByUID(uid []byte) (*Host, bool) {
	if len(uid) == 0 {
		return nil, false
	}
	id, ok := r.byUID.Head(uid)
	if !ok {
		return nil, false
	}
	return r.resolve(id)
}

// FindHostByName returns the host registered under name. A deleted
// static host stays in the name index and is returned here too.
func (r *Registry) FindHostByName(name string) (*Host, bool) {
	id, ok := r.byName.Head([]byte(name))
	if !ok {
		return nil, false
	}
	return r.resolve(id)
}

// All returns every host reservation currently registered, live or
// deleted, for whole-database diagnostics (§12 dump_subnets/free_everything
// style reporting) and for write_leases-style dynamic-host persistence.
// Order is unspecified.
func (r *Registry) All() []*Host {
	out := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	return out
}

// Next returns h's sibling in whatever chain it was appended to.
func (r *Registry) Next(h *Host) (*Host, bool) {
	if h.NIPAddr == "" {
		return nil, false
	}
	return r.resolve(h.NIPAddr)
}

// FindHostsByOption returns the host chained under the host-identifier
// entry (opt, relayDepth) whose recorded value equals value (§4.2,
// find_hosts_by_option's values-hash lookup).
func (r *Registry) FindHostsByOption(opt d4.OptionCode, relayDepth int, value []byte) (*Host, bool) {
	entry, ok := r.hostIDs.Find(opt, relayDepth)
	if !ok {
		return nil, false
	}
	id, ok := entry.Values.Head(value)
	if !ok {
		return nil, false
	}
	return r.resolve(id)
}

// FindHostsByOptionFromPacket implements find_hosts_by_option in full
// (§4.2): it walks every registered host-identifier entry in insertion
// order, descends packet exactly entry.RelayDepth relay hops via
// optioncache.DescendRelays (skipping the entry if the descent can't
// reach that depth), evaluates the option cache at that depth, and
// returns the first entry whose value has a matching host. A
// relay_depth of 0 evaluates packet's own option block.
func (r *Registry) FindHostsByOptionFromPacket(packet optioncache.Packet) (*Host, bool) {
	for _, entry := range r.hostIDs.Entries() {
		p, ok := optioncache.DescendRelays(packet, entry.RelayDepth)
		if !ok {
			continue
		}
		value, ok := p.Options().Get(entry.Option)
		if !ok {
			continue
		}
		if h, ok := r.FindHostsByOption(entry.Option, entry.RelayDepth, value); ok {
			return h, true
		}
	}
	return nil, false
}

// FindHostForNetwork walks hostChain's n_ipaddr siblings, evaluating each
// host's fixed-address expression and returning the first IPv4 address
// whose subnet belongs to share (§4.2). *hostOut is reseated to the
// matching host on success.
func (r *Registry) FindHostForNetwork(hostChain *Host, share *topology.SharedNetwork, topo *topology.Registry, hostOut **Host) (*topology.Subnet, net.IP, bool) {
	for cur := hostChain; cur != nil; {
		if cur.FixedAddr != nil {
			packed, err := cur.FixedAddr.Evaluate()
			if err == nil {
				for off := 0; off+4 <= len(packed); off += 4 {
					addr := net.IP(packed[off : off+4])
					for _, sn := range topo.Subnets() {
						if sn.SharedNetwork != share.ID {
							continue
						}
						if sn.Contains(addr) {
							*hostOut = cur
							return sn, addr, true
						}
					}
				}
			} else {
				r.log.Warn("failed to evaluate fixed-address expression", "host", cur.Name, "err", err)
			}
		}
		next, ok := r.Next(cur)
		if !ok {
			break
		}
		cur = next
	}
	return nil, nil, false
}
