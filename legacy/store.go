// Package legacy mirrors entity cache writes into the older normalized store
// that some consumers still read from.
//
// The entity cache never reads the legacy store for correctness. The only
// read is Contains, used by multi-id queries to hold their result until every
// entity is visible to both kinds of consumer. The whole package can go once
// those consumers have moved to the entity cache.
package legacy

import (
	"context"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is the write side of the legacy store plus a presence check.
type Store interface {
	Write(ctx context.Context, entities ...entity.Entity) error
	Contains(ctx context.Context, ref entity.Ref) (bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	entities *xsync.MapOf[entity.Ref, entity.Entity]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: xsync.NewMapOf[entity.Ref, entity.Entity]()}
}

func (m *MemoryStore) Write(ctx context.Context, entities ...entity.Entity) error {
	for _, e := range entities {
		m.entities.Store(e.EntityRef(), e)
	}
	return nil
}

func (m *MemoryStore) Contains(ctx context.Context, ref entity.Ref) (bool, error) {
	_, ok := m.entities.Load(ref)
	return ok, nil
}

// Get returns the last entity written for ref.
func (m *MemoryStore) Get(ref entity.Ref) (entity.Entity, bool) {
	return m.entities.Load(ref)
}

// Remove drops ref. Legacy consumers evict on their own schedule; this is
// how that shows up here.
func (m *MemoryStore) Remove(ref entity.Ref) {
	m.entities.Delete(ref)
}

// Len returns the number of stored entities.
func (m *MemoryStore) Len() int {
	return m.entities.Size()
}
