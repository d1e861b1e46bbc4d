// Package classes implements §4.8's Class registry: a dynamic table of
// billing classes and, per class, a hash of subclasses keyed by the
// class's matching expression's hashed string value.
package classes

import (
	"fmt"

	"github.com/google/uuid"

	"leasedb/internal/dbresult"
	"leasedb/internal/ids"
)

// Class is a billing class or one of its subclasses.
type Class struct {
	ID      ids.ClassID
	Name    string
	Dynamic bool
	Deleted bool

	// LeasesBilled counts leases currently billed to this class, maintained
	// by Bill/Unbill as the lease state machine's billing-class field
	// changes (§4.5 supersede_lease step 3).
	LeasesBilled int

	// nic is the "next in collection" sibling pointer for top-level
	// classes appended to collections->classes (§4.8).
	nic ids.ClassID

	// superHash holds subclasses, keyed by hash_string of the subclass's
	// matching value, when this Class is itself a top-level collection
	// member that owns subclasses.
	superHash map[string]ids.ClassID
}

// JournalWriter is the subset of the persistence bridge (§6) the class
// registry needs: dynamic class declarations are journaled by name.
type JournalWriter interface {
	WriteNamedBillingClass(name string, cp []byte) error
}

// Registry is the Class registry component (§4.8).
type Registry struct {
	classes map[ids.ClassID]*Class
	byName  map[string]ids.ClassID
	head    ids.ClassID
	tail    ids.ClassID
	journal JournalWriter
}

// NewRegistry creates an empty class registry. journal may be nil, in
// which case dynamic commits are skipped (useful for tests).
func NewRegistry(journal JournalWriter) *Registry {
	return &Registry{
		classes: make(map[ids.ClassID]*Class),
		byName:  make(map[string]ids.ClassID),
		journal: journal,
	}
}

// FindClass returns the top-level class named name, if any.
func (r *Registry) FindClass(name string) (*Class, bool) {
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	c := r.classes[id]
	if c.Deleted {
		return nil, false
	}
	return c, true
}

// EnterClass registers cd as a new top-level class (§4.8): the first
// class becomes collections->classes; subsequent named classes are
// appended to the tail of the nic chain unless a class by that name
// already exists, in which case dbresult.Exists is returned. Dynamic
// commits are journaled via write_named_billing_class.
func (r *Registry) EnterClass(cd *Class, dynamic, commit bool) error {
	if cd.Name != "" {
		if _, exists := r.FindClass(cd.Name); exists {
			return dbresult.Existsf("EnterClass", "class %q already exists", cd.Name)
		}
	}
	if cd.ID == "" {
		cd.ID = ids.ClassID(uuid.NewString())
	}
	r.classes[cd.ID] = cd
	if cd.Name != "" {
		r.byName[cd.Name] = cd.ID
	}

	if r.head == "" {
		r.head = cd.ID
	} else {
		r.classes[r.tail].nic = cd.ID
	}
	r.tail = cd.ID

	cd.Dynamic = dynamic
	if dynamic && commit {
		if err := r.journalClass(cd); err != nil {
			return err
		}
	}
	return nil
}

// EnterSubclass registers sub as a subclass of parent, hashed by
// hashValue (the evaluated matching expression's hash_string).
func (r *Registry) EnterSubclass(parent *Class, hashValue string, sub *Class) error {
	if parent.superHash == nil {
		parent.superHash = make(map[string]ids.ClassID)
	}
	if sub.ID == "" {
		sub.ID = ids.ClassID(uuid.NewString())
	}
	r.classes[sub.ID] = sub
	parent.superHash[hashValue] = sub.ID
	if sub.Dynamic {
		if err := r.journalClass(sub); err != nil {
			return err
		}
	}
	return nil
}

// FindSubclass looks up a subclass of parent by its matching hash value.
func (r *Registry) FindSubclass(parent *Class, hashValue string) (*Class, bool) {
	if parent.superHash == nil {
		return nil, false
	}
	id, ok := parent.superHash[hashValue]
	if !ok {
		return nil, false
	}
	c := r.classes[id]
	if c.Deleted {
		return nil, false
	}
	return c, true
}

// DeleteClass marks cd deleted, journals the deletion first, removes it
// from its superclass hash (if it is a subclass), and unlinks it from the
// top-level collections list (§4.8).
func (r *Registry) DeleteClass(cd *Class, parent *Class, hashValue string) error {
	if cd.Deleted {
		return nil
	}
	if err := r.journalClass(cd); err != nil {
		return err
	}
	cd.Deleted = true

	if parent != nil && parent.superHash != nil {
		delete(parent.superHash, hashValue)
	}

	if r.head == cd.ID {
		r.head = cd.nic
		if r.tail == cd.ID {
			r.tail = ""
		}
		return nil
	}
	prev, ok := r.predecessor(cd.ID)
	if ok {
		r.classes[prev].nic = cd.nic
		if r.tail == cd.ID {
			r.tail = prev
		}
	}
	return nil
}

func (r *Registry) predecessor(id ids.ClassID) (ids.ClassID, bool) {
	cur := r.head
	for cur != "" {
		c := r.classes[cur]
		if c.nic == id {
			return cur, true
		}
		cur = c.nic
	}
	return "", false
}

// Classes returns all top-level classes in collection order.
func (r *Registry) Classes() []*Class {
	var out []*Class
	cur := r.head
	for cur != "" {
		c := r.classes[cur]
		out = append(out, c)
		cur = c.nic
	}
	return out
}

// Bill and Unbill adjust a class's billed-lease count. Either accepts a
// zero ids.ClassID as a no-op, since a lease's billing class is commonly
// unset.
func (r *Registry) Bill(id ids.ClassID) {
	if c, ok := r.classes[id]; ok {
		c.LeasesBilled++
	}
}

func (r *Registry) Unbill(id ids.ClassID) {
	if c, ok := r.classes[id]; ok && c.LeasesBilled > 0 {
		c.LeasesBilled--
	}
}

func (r *Registry) journalClass(cd *Class) error {
	if r.journal == nil {
		return nil
	}
	if err := r.journal.WriteNamedBillingClass(cd.Name, []byte(fmt.Sprintf("class:%s", cd.ID))); err != nil {
		return dbresult.IOErrorf("EnterClass", "write_named_billing_class: %w", err)
	}
	return nil
}
