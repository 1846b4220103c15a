package entitycache

import (
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/puzpuzpuz/xsync/v3"
)

// Record is the constraint satisfied by cached entity pointers.
type Record[T any] interface {
	entity.Entity
	Clone() T
	IndexKey() string
}

// Store holds one canonical copy per id of a single entity kind, plus a
// secondary index from permalink or handle to id.
//
// The primary map is always written before the index, so an index hit always
// resolves to a present id.
type Store[T Record[T]] struct {
	kind  entity.Kind
	byID  *xsync.MapOf[entity.ID, T]
	index *xsync.MapOf[string, entity.ID]
	norm  func(string) string
}

// NewStore creates an empty store. norm normalizes secondary keys; nil keeps
// them as is.
func NewStore[T Record[T]](kind entity.Kind, norm func(string) string) *Store[T] {
	if norm == nil {
		norm = func(s string) string { return s }
	}
	return &Store[T]{
		kind:  kind,
		byID:  xsync.NewMapOf[entity.ID, T](),
		index: xsync.NewMapOf[string, entity.ID](),
		norm:  norm,
	}
}

// Kind returns the entity kind held by the store.
func (s *Store[T]) Kind() entity.Kind { return s.kind }

// Get returns a copy of the entity stored under id.
func (s *Store[T]) Get(id entity.ID) (T, bool) {
	v, ok := s.byID.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return v.Clone(), true
}

// GetByKey resolves a permalink or handle through the secondary index.
func (s *Store[T]) GetByKey(key string) (T, bool) {
	id, ok := s.index.Load(s.norm(key))
	if !ok {
		var zero T
		return zero, false
	}
	return s.Get(id)
}

// Has reports whether id is present.
func (s *Store[T]) Has(id entity.ID) bool {
	_, ok := s.byID.Load(id)
	return ok
}

// PrimeIfAbsent stores v only when no entity with the same id exists. It
// reports whether v was written.
func (s *Store[T]) PrimeIfAbsent(v T) bool {
	id := v.EntityRef().ID
	_, loaded := s.byID.LoadOrStore(id, v)
	if loaded {
		return false
	}
	s.indexPut(id, "", v.IndexKey())
	return true
}

// Replace stores v unconditionally.
func (s *Store[T]) Replace(v T) {
	id := v.EntityRef().ID
	prev, loaded := s.byID.LoadAndStore(id, v)
	oldKey := ""
	if loaded {
		oldKey = prev.IndexKey()
	}
	s.indexPut(id, oldKey, v.IndexKey())
}

func (s *Store[T]) indexPut(id entity.ID, oldKey, newKey string) {
	oldKey, newKey = s.norm(oldKey), s.norm(newKey)
	if oldKey != "" && oldKey != newKey {
		s.index.Compute(oldKey, func(cur entity.ID, loaded bool) (entity.ID, bool) {
			// keep entries that another entity has claimed since
			return cur, !loaded || cur == id
		})
	}
	if newKey != "" {
		s.index.Store(newKey, id)
	}
}

// Range calls fn with a copy of every entity until fn returns false.
func (s *Store[T]) Range(fn func(T) bool) {
	s.byID.Range(func(_ entity.ID, v T) bool {
		return fn(v.Clone())
	})
}

// Clear drops every entity and index entry.
func (s *Store[T]) Clear() {
	s.byID.Clear()
	s.index.Clear()
}

// Len returns the number of cached entities.
func (s *Store[T]) Len() int {
	return s.byID.Size()
}
