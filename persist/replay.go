package persist

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	d4 "github.com/krolaw/dhcp4"
	bolt "go.etcd.io/bbolt"

	"leasedb/classes"
	"leasedb/host"
	"leasedb/internal/ids"
	"leasedb/internal/state"
	"leasedb/lease"
)

// ReplayInto rebuilds hostReg, leaseReg, and classReg from whatever this
// store last durably committed — the startup-time counterpart to
// write_host/write_lease/write_named_billing_class (§6). Leases and hosts
// are entered with dynamic=false so the replay itself is never
// rejournaled; topology (subnets and pools) must already be registered by
// the caller before calling ReplayInto, since neither record format
// carries enough to reconstruct it (persistence format, like
// configuration syntax, is out of this module's scope — §1).
func (b *BoltDB) ReplayInto(hostReg *host.Registry, leaseReg *lease.Registry, classReg *classes.Registry) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if err := replayHosts(tx, hostReg); err != nil {
			return err
		}
		if err := replayLeases(tx, leaseReg); err != nil {
			return err
		}
		return replayClasses(tx, classReg)
	})
}

func replayHosts(tx *bolt.Tx, hostReg *host.Registry) error {
	bkt := tx.Bucket([]byte(bucketHosts))
	if bkt == nil {
		return nil
	}
	return bkt.ForEach(func(k, v []byte) error {
		var rec hostRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal host %q: %w", k, err)
		}
		h := &host.Host{
			Name:             rec.Name,
			ClientIdentifier: rec.ClientIdentifier,
			HostIDValue:      rec.HostIDValue,
			Flags:            host.Flags(rec.Flags),
		}
		if len(rec.HWAddr) > 0 {
			h.Interface = host.HWAddr{Type: rec.HWType, Addr: rec.HWAddr}
		}
		if rec.HasHostIDOption {
			h.HostIDOption = &host.HostIDOption{Option: d4.OptionCode(rec.HostIDOption), RelayDepth: rec.HostIDRelayDepth}
		}
		return hostReg.EnterHost(h, false, false)
	})
}

func replayLeases(tx *bolt.Tx, leaseReg *lease.Registry) error {
	bkt := tx.Bucket([]byte(bucketLeases))
	if bkt == nil {
		return nil
	}
	return bkt.ForEach(func(k, v []byte) error {
		var rec leaseRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal lease %q: %w", k, err)
		}
		ip := net.ParseIP(rec.IP)
		if ip == nil {
			return fmt.Errorf("lease record %q: invalid IP", k)
		}
		l := &lease.Lease{
			IP:                 ip,
			Starts:             time.Unix(rec.Starts, 0).UTC(),
			Ends:               time.Unix(rec.Ends, 0).UTC(),
			Cltt:               time.Unix(rec.Cltt, 0).UTC(),
			Tstp:               time.Unix(rec.Tstp, 0).UTC(),
			Tsfp:               time.Unix(rec.Tsfp, 0).UTC(),
			Atsfp:              time.Unix(rec.Atsfp, 0).UTC(),
			UID:                rec.UID,
			BindingState:       state.BindingState(rec.BindingState),
			NextBindingState:   state.BindingState(rec.NextBindingState),
			RewindBindingState: state.BindingState(rec.RewindBindingState),
			Flags:              lease.Flags(rec.Flags),
			Pool:               ids.PoolID(rec.Pool),
			Subnet:             ids.SubnetID(rec.Subnet),
			Host:               ids.HostID(rec.Host),
			Class:              ids.ClassID(rec.Class),
			Scope:              rec.Scope,
			ClientHostname:     rec.ClientHostname,
			AgentOptions:       mapToAgentOptions(rec.AgentOptions),
		}
		if len(rec.HWAddr) > 0 {
			l.HardwareAddr.Type = rec.HWType
			l.HardwareAddr.Addr = rec.HWAddr
		}
		return leaseReg.EnterLease(l)
	})
}

func replayClasses(tx *bolt.Tx, classReg *classes.Registry) error {
	bkt := tx.Bucket([]byte(bucketClasses))
	if bkt == nil {
		return nil
	}
	return bkt.ForEach(func(k, v []byte) error {
		var rec classRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal class %q: %w", k, err)
		}
		if _, exists := classReg.FindClass(rec.Name); exists {
			return nil
		}
		return classReg.EnterClass(&classes.Class{Name: rec.Name, Dynamic: true}, false, false)
	})
}
