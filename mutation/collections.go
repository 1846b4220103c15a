package mutation

import (
	"context"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
)

// FavoriteCollection saves a playlist or album for the current user.
func (c *Coordinator) FavoriteCollection(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "favorite_collection",
		Type:    remote.ActionFavorite,
		Target:  entity.CollectionRef(id),
		Apply: func(tx *Tx) error {
			return applyCollectionSave(tx, id, true)
		},
	})
}

// UnfavoriteCollection removes a saved playlist or album.
func (c *Coordinator) UnfavoriteCollection(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "unfavorite_collection",
		Type:    remote.ActionUnfavorite,
		Target:  entity.CollectionRef(id),
		Apply: func(tx *Tx) error {
			return applyCollectionSave(tx, id, false)
		},
	})
}

func applyCollectionSave(tx *Tx, id entity.ID, save bool) error {
	uid, err := tx.CurrentUserID()
	if err != nil {
		return err
	}
	col, err := tx.Collection(id)
	if err != nil {
		return err
	}
	if save && col.PlaylistOwnerID == uid {
		return ErrSelfAction
	}
	if col.HasCurrentUserSaved == save {
		return ErrDuplicateAction
	}

	col.HasCurrentUserSaved = save
	if save {
		col.SaveCount++
	} else {
		col.SaveCount = decrement(col.SaveCount)
	}
	return tx.PutCollection(col)
}

// RepostCollection reposts a playlist or album for the current user.
func (c *Coordinator) RepostCollection(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "repost_collection",
		Type:    remote.ActionRepost,
		Target:  entity.CollectionRef(id),
		Apply: func(tx *Tx) error {
			return applyCollectionRepost(tx, id, true)
		},
	})
}

// UndoRepostCollection removes a repost of a playlist or album.
func (c *Coordinator) UndoRepostCollection(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "undo_repost_collection",
		Type:    remote.ActionUndoRepost,
		Target:  entity.CollectionRef(id),
		Apply: func(tx *Tx) error {
			return applyCollectionRepost(tx, id, false)
		},
	})
}

// applyCollectionRepost flips the repost flag and moves the collection's and
// the current user's repost counters with it.
func applyCollectionRepost(tx *Tx, id entity.ID, repost bool) error {
	uid, err := tx.CurrentUserID()
	if err != nil {
		return err
	}
	col, err := tx.Collection(id)
	if err != nil {
		return err
	}
	if repost && col.PlaylistOwnerID == uid {
		return ErrSelfAction
	}
	if col.HasCurrentUserReposted == repost {
		return ErrDuplicateAction
	}
	u, err := tx.User(uid)
	if err != nil && !errors.Is(err, ErrNotCached) {
		return err
	}

	col.HasCurrentUserReposted = repost
	if repost {
		col.RepostCount++
	} else {
		col.RepostCount = decrement(col.RepostCount)
	}
	if err := tx.PutCollection(col); err != nil {
		return err
	}

	if u == nil {
		return nil
	}
	if repost {
		u.RepostCount++
	} else {
		u.RepostCount = decrement(u.RepostCount)
	}
	return tx.PutUser(u)
}

// DeleteCollection tombstones one of the current user's collections. Deleting
// an album tombstones its cached tracks too.
func (c *Coordinator) DeleteCollection(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "delete_collection",
		Type:    remote.ActionDelete,
		Target:  entity.CollectionRef(id),
		Apply: func(tx *Tx) error {
			uid, err := tx.CurrentUserID()
			if err != nil {
				return err
			}
			col, err := tx.Collection(id)
			if err != nil {
				return err
			}
			if col.PlaylistOwnerID != uid {
				return ErrNotOwner
			}
			if col.MarkedDeleted || col.IsDelete {
				return ErrDuplicateAction
			}
			owner, err := tx.User(uid)
			if err != nil && !errors.Is(err, ErrNotCached) {
				return err
			}

			col.MarkedDeleted = true
			if err := tx.PutCollection(col); err != nil {
				return err
			}

			if col.IsAlbum {
				for _, ref := range col.TrackRefs() {
					t, err := tx.Track(ref.ID)
					if errors.Is(err, ErrNotCached) {
						continue
					}
					if err != nil {
						return err
					}
					t.MarkedDeleted = true
					if err := tx.PutTrack(t); err != nil {
						return err
					}
				}
			}

			if owner == nil {
				return nil
			}
			owner.PlaylistCount = decrement(owner.PlaylistCount)
			return tx.PutUser(owner)
		},
	})
}
