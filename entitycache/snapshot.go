package entitycache

import (
	"context"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot holds the encoded pre-mutation state of a set of entities.
// Restoring it brings each entity back to the exact bytes captured.
type Snapshot struct {
	order   []entity.Ref
	entries map[entity.Ref][]byte
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[entity.Ref][]byte)}
}

// Refs returns the captured refs in capture order.
func (s *Snapshot) Refs() []entity.Ref {
	out := make([]entity.Ref, len(s.order))
	copy(out, s.order)
	return out
}

// Contains reports whether ref was captured.
func (s *Snapshot) Contains(ref entity.Ref) bool {
	_, ok := s.entries[ref]
	return ok
}

// Bytes returns the captured encoding of ref.
func (s *Snapshot) Bytes(ref entity.Ref) ([]byte, bool) {
	b, ok := s.entries[ref]
	return b, ok
}

// Len returns the number of captured entities.
func (s *Snapshot) Len() int { return len(s.order) }

// Merge adds entries from o that s does not hold yet. The first capture of
// an entity wins.
func (s *Snapshot) Merge(o *Snapshot) {
	if o == nil {
		return
	}
	for _, ref := range o.order {
		if _, ok := s.entries[ref]; ok {
			continue
		}
		s.order = append(s.order, ref)
		s.entries[ref] = o.entries[ref]
	}
}

// Encode returns the canonical snapshot encoding of e.
func Encode(e entity.Entity) ([]byte, error) {
	return msgpack.Marshal(e)
}

// Snapshot captures the cached state of refs. Refs that are not cached are
// skipped.
func (c *Cache) Snapshot(refs ...entity.Ref) (*Snapshot, error) {
	snap := NewSnapshot()
	for _, ref := range refs {
		if snap.Contains(ref) {
			continue
		}
		e, ok := c.Get(ref)
		if !ok {
			continue
		}
		data, err := Encode(e)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "encode snapshot").
				WithMetadata(map[string]any{"ref": ref.String()})
		}
		snap.order = append(snap.order, ref)
		snap.entries[ref] = data
	}
	return snap, nil
}

// Restore force-writes every captured entity back into the cache. Entities
// are written as captured, without normalization.
func (c *Cache) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Len() == 0 {
		return nil
	}

	var b batch
	for _, ref := range snap.order {
		data := snap.entries[ref]
		switch ref.Kind {
		case entity.KindTrack:
			var t entity.Track
			if err := msgpack.Unmarshal(data, &t); err != nil {
				return restoreError(err, ref)
			}
			b.tracks = append(b.tracks, &t)
		case entity.KindUser:
			var u entity.User
			if err := msgpack.Unmarshal(data, &u); err != nil {
				return restoreError(err, ref)
			}
			b.users = append(b.users, &u)
		case entity.KindCollection:
			var col entity.Collection
			if err := msgpack.Unmarshal(data, &col); err != nil {
				return restoreError(err, ref)
			}
			b.collections = append(b.collections, &col)
		}
	}

	c.commit(ctx, ModeReplace, &b)
	return nil
}

func restoreError(err error, ref entity.Ref) error {
	return errors.Wrap(err, errors.CategoryInternal, "decode snapshot").
		WithMetadata(map[string]any{"ref": ref.String()})
}
