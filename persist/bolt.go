package persist

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"leasedb/host"
	"leasedb/lease"
)

const (
	bucketLeases  = "leases"
	bucketHosts   = "hosts"
	bucketClasses = "classes"
	bucketGroups  = "groups"
)

var allBuckets = []string{bucketLeases, bucketHosts, bucketClasses, bucketGroups}

// pendingWrite is one staged record awaiting the next CommitLeases flush.
type pendingWrite struct {
	bucket string
	key    string
	value  []byte
}

// BoltDB is the default Bridge implementation: an embedded bbolt store,
// adapted from the teacher's bucketed key-value wrapper. Writes are
// staged in memory and only committed to disk — in one bbolt transaction,
// which bbolt fsyncs by default — when CommitLeases is called, mirroring
// §6's "buffered I/O and fsync on commit_leases" contract rather than
// fsyncing on every write_* call.
type BoltDB struct {
	db *bolt.DB

	mu      sync.Mutex
	pending map[string]pendingWrite
}

// Open creates or opens a bbolt-backed bridge at path, ensuring every
// bucket this module writes to exists.
func Open(dir, file string) (*BoltDB, error) {
	path := filepath.Join(dir, file)
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt database: %w", err)
	}
	b := &BoltDB{db: db, pending: make(map[string]pendingWrite)}
	if err := b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return b, nil
}

var _ Bridge = (*BoltDB)(nil)

// Close releases the underlying bbolt file handle.
func (b *BoltDB) Close() error { return b.db.Close() }

func (b *BoltDB) stage(bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucket, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[bucket+"\x00"+key] = pendingWrite{bucket: bucket, key: key, value: data}
	return nil
}

// WriteHost stages h's durable projection (§6 write_host).
func (b *BoltDB) WriteHost(h *host.Host) error {
	return b.stage(bucketHosts, h.Name, toHostRecord(h))
}

// WriteLease stages l's durable projection (§6 write_lease).
func (b *BoltDB) WriteLease(l *lease.Lease) error {
	return b.stage(bucketLeases, l.IP.String(), toLeaseRecord(l))
}

// WriteNamedBillingClass stages a class journal entry (§6
// write_named_billing_class).
func (b *BoltDB) WriteNamedBillingClass(name string, cp []byte) error {
	return b.stage(bucketClasses, name, classRecord{Name: name, CP: cp})
}

// WriteGroup stages a group-statement scope (§6 write_group). Keyed by its
// address since groups carry no name of their own.
func (b *BoltDB) WriteGroup(g *host.Group) error {
	return b.stage(bucketGroups, fmt.Sprintf("%p", g), g)
}

// CommitLeases flushes every staged write in one bbolt transaction, which
// durably fsyncs on success (§6 commit_leases).
func (b *BoltDB) CommitLeases() error {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string]pendingWrite)
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, w := range batch {
			bkt := tx.Bucket([]byte(w.bucket))
			if bkt == nil {
				return fmt.Errorf("bucket %q not found", w.bucket)
			}
			if err := bkt.Put([]byte(w.key), w.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Put the batch back so a retried commit doesn't lose writes.
		b.mu.Lock()
		for k, w := range batch {
			if _, exists := b.pending[k]; !exists {
				b.pending[k] = w
			}
		}
		b.mu.Unlock()
		return fmt.Errorf("commit leases: %w", err)
	}
	return nil
}
