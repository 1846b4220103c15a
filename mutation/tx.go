package mutation

import (
	"context"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
)

// Tx is the speculative-apply scope of one mutation. The first time an
// entity is read through a Tx, any in-flight refetch of it is cancelled and
// its cached state is captured; rolling back restores every captured entity.
type Tx struct {
	ctx     context.Context
	cache   *entitycache.Cache
	queries Queries
	userID  entity.ID
	snap    *entitycache.Snapshot
	dirty   bool
}

func newTx(ctx context.Context, cache *entitycache.Cache, queries Queries, userID entity.ID) *Tx {
	return &Tx{
		ctx:     ctx,
		cache:   cache,
		queries: queries,
		userID:  userID,
		snap:    entitycache.NewSnapshot(),
	}
}

// CurrentUserID returns the acting user or ErrMissingCurrentUser.
func (tx *Tx) CurrentUserID() (entity.ID, error) {
	if tx.userID == 0 {
		return 0, ErrMissingCurrentUser
	}
	return tx.userID, nil
}

// Track returns a mutable copy of a cached track.
func (tx *Tx) Track(id entity.ID) (*entity.Track, error) {
	if err := tx.touch(entity.TrackRef(id)); err != nil {
		return nil, err
	}
	t, ok := tx.cache.Track(id)
	if !ok {
		return nil, ErrNotCached
	}
	return t, nil
}

// User returns a mutable copy of a cached user.
func (tx *Tx) User(id entity.ID) (*entity.User, error) {
	if err := tx.touch(entity.UserRef(id)); err != nil {
		return nil, err
	}
	u, ok := tx.cache.User(id)
	if !ok {
		return nil, ErrNotCached
	}
	return u, nil
}

// Collection returns a mutable copy of a cached collection.
func (tx *Tx) Collection(id entity.ID) (*entity.Collection, error) {
	if err := tx.touch(entity.CollectionRef(id)); err != nil {
		return nil, err
	}
	c, ok := tx.cache.Collection(id)
	if !ok {
		return nil, ErrNotCached
	}
	return c, nil
}

// PutTrack force-writes t.
func (tx *Tx) PutTrack(t *entity.Track) error {
	if err := tx.touch(t.EntityRef()); err != nil {
		return err
	}
	tx.dirty = true
	tx.cache.ReplaceTracks(tx.ctx, t)
	return nil
}

// PutUser force-writes u.
func (tx *Tx) PutUser(u *entity.User) error {
	if err := tx.touch(u.EntityRef()); err != nil {
		return err
	}
	tx.dirty = true
	tx.cache.ReplaceUsers(tx.ctx, u)
	return nil
}

// PutCollection force-writes c.
func (tx *Tx) PutCollection(c *entity.Collection) error {
	if err := tx.touch(c.EntityRef()); err != nil {
		return err
	}
	tx.dirty = true
	tx.cache.ReplaceCollections(tx.ctx, c)
	return nil
}

// Touched returns the refs captured so far.
func (tx *Tx) Touched() []entity.Ref {
	return tx.snap.Refs()
}

func (tx *Tx) touch(ref entity.Ref) error {
	if tx.snap.Contains(ref) {
		return nil
	}
	if tx.queries != nil {
		tx.queries.Cancel(ref)
	}
	s, err := tx.cache.Snapshot(ref)
	if err != nil {
		return err
	}
	tx.snap.Merge(s)
	return nil
}

// rollback restores the captured state. A Tx that never wrote has nothing
// to undo.
func (tx *Tx) rollback(ctx context.Context) error {
	if !tx.dirty {
		return nil
	}
	return tx.cache.Restore(ctx, tx.snap)
}
