// Package catalog implements the concurrent name->catalog registry
// described in spec.md §4.7. It is unrelated to the task lifecycle; it is
// included as a sibling example of the thread-safe primitives the worker
// process exposes alongside the task coordinator.
package catalog

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
)

// Catalog is the handle stored in the registry. Its contents are opaque to
// this package beyond the Name used as the registration key.
type Catalog struct {
	Name          string
	ConnectorName string
	Properties    map[string]string
}

const tableCatalogs = "catalogs"

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableCatalogs: {
				Name: tableCatalogs,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
		},
	}
}

// Registry is a concurrent name->Catalog map, backed by go-memdb so that
// lookups and the Names() snapshot are wait-free against concurrent
// registrations: every reader gets a point-in-time, copy-on-write view of
// the underlying radix tree regardless of writers in flight.
type Registry struct {
	db *memdb.MemDB
}

// NewRegistry constructs an empty registry.
func NewRegistry() (*Registry, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("catalog registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Register adds c to the registry. It fails if a catalog with the same
// name is already registered. Registration is serialized by memdb's single
// writer-transaction-at-a-time discipline, which is exactly the
// serialization spec.md §4.7 calls for.
func (r *Registry) Register(c Catalog) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableCatalogs, "id", c.Name)
	if err != nil {
		return fmt.Errorf("catalog registry: lookup %q: %w", c.Name, err)
	}
	if existing != nil {
		return fmt.Errorf("catalog registry: %q already registered", c.Name)
	}

	if err := txn.Insert(tableCatalogs, &c); err != nil {
		return fmt.Errorf("catalog registry: insert %q: %w", c.Name, err)
	}
	txn.Commit()
	return nil
}

// Remove deletes and returns the catalog registered under name, if any.
func (r *Registry) Remove(name string) (Catalog, bool) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableCatalogs, "id", name)
	if err != nil || existing == nil {
		return Catalog{}, false
	}

	if err := txn.Delete(tableCatalogs, existing); err != nil {
		return Catalog{}, false
	}
	txn.Commit()

	return *existing.(*Catalog), true
}

// Get returns the catalog registered under name, if any.
func (r *Registry) Get(name string) (Catalog, bool) {
	txn := r.db.Txn(false)
	existing, err := txn.First(tableCatalogs, "id", name)
	if err != nil || existing == nil {
		return Catalog{}, false
	}
	return *existing.(*Catalog), true
}

// Names returns a snapshot of every registered catalog name.
func (r *Registry) Names() []string {
	txn := r.db.Txn(false)
	it, err := txn.Get(tableCatalogs, "id")
	if err != nil {
		return nil
	}

	var names []string
	for raw := it.Next(); raw != nil; raw = it.Next() {
		names = append(names, raw.(*Catalog).Name)
	}
	return names
}
