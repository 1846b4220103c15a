package mutation

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
)

// FavoriteTrack saves a track for the current user. A remix of one of the
// user's own tracks is co-signed in the same write.
func (c *Coordinator) FavoriteTrack(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "favorite_track",
		Type:    remote.ActionFavorite,
		Target:  entity.TrackRef(id),
		Apply: func(tx *Tx) error {
			return applyTrackSocial(tx, id, true, func(t *entity.Track, u *entity.User, parent *entity.RemixTrack) error {
				if t.HasCurrentUserSaved {
					return ErrDuplicateAction
				}
				t.HasCurrentUserSaved = true
				t.SaveCount++
				if u != nil {
					u.TrackSaveCount++
				}
				if parent != nil {
					parent.HasRemixAuthorSaved = true
				}
				return nil
			})
		},
	})
}

// UnfavoriteTrack removes a saved track.
func (c *Coordinator) UnfavoriteTrack(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "unfavorite_track",
		Type:    remote.ActionUnfavorite,
		Target:  entity.TrackRef(id),
		Apply: func(tx *Tx) error {
			return applyTrackSocial(tx, id, false, func(t *entity.Track, u *entity.User, parent *entity.RemixTrack) error {
				if !t.HasCurrentUserSaved {
					return ErrDuplicateAction
				}
				t.HasCurrentUserSaved = false
				t.SaveCount = decrement(t.SaveCount)
				if u != nil {
					u.TrackSaveCount = decrement(u.TrackSaveCount)
				}
				if parent != nil {
					parent.HasRemixAuthorSaved = false
				}
				return nil
			})
		},
	})
}

// RepostTrack reposts a track for the current user.
func (c *Coordinator) RepostTrack(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "repost_track",
		Type:    remote.ActionRepost,
		Target:  entity.TrackRef(id),
		Apply: func(tx *Tx) error {
			return applyTrackSocial(tx, id, true, func(t *entity.Track, u *entity.User, parent *entity.RemixTrack) error {
				if t.HasCurrentUserReposted {
					return ErrDuplicateAction
				}
				t.HasCurrentUserReposted = true
				t.RepostCount++
				if u != nil {
					u.RepostCount++
				}
				if parent != nil {
					parent.HasRemixAuthorReposted = true
				}
				return nil
			})
		},
	})
}

// UndoRepostTrack removes a repost.
func (c *Coordinator) UndoRepostTrack(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "undo_repost_track",
		Type:    remote.ActionUndoRepost,
		Target:  entity.TrackRef(id),
		Apply: func(tx *Tx) error {
			return applyTrackSocial(tx, id, false, func(t *entity.Track, u *entity.User, parent *entity.RemixTrack) error {
				if !t.HasCurrentUserReposted {
					return ErrDuplicateAction
				}
				t.HasCurrentUserReposted = false
				t.RepostCount = decrement(t.RepostCount)
				if u != nil {
					u.RepostCount = decrement(u.RepostCount)
				}
				if parent != nil {
					parent.HasRemixAuthorReposted = false
				}
				return nil
			})
		},
	})
}

// applyTrackSocial loads the track and the current user, runs change and
// writes both back. parent is the remix relation when the current user owns
// the remixed track, nil otherwise. The current user is optional: counters
// on an uncached account are left alone.
func applyTrackSocial(tx *Tx, id entity.ID, guardSelf bool, change func(t *entity.Track, u *entity.User, parent *entity.RemixTrack) error) error {
	uid, err := tx.CurrentUserID()
	if err != nil {
		return err
	}
	t, err := tx.Track(id)
	if err != nil {
		return err
	}
	if guardSelf && t.OwnerID == uid {
		return ErrSelfAction
	}

	u, err := tx.User(uid)
	if err != nil && !errors.Is(err, ErrNotCached) {
		return err
	}

	var parent *entity.RemixTrack
	if p, ok := t.RemixParent(); ok && p.UserID == uid {
		parent = p
	}

	if err := change(t, u, parent); err != nil {
		return err
	}
	t.RecomputeCoSign()

	if err := tx.PutTrack(t); err != nil {
		return err
	}
	if u != nil {
		return tx.PutUser(u)
	}
	return nil
}

// DeleteTrack tombstones one of the current user's tracks. The owner's track
// count drops and an artist pick pointing at the track is cleared.
func (c *Coordinator) DeleteTrack(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "delete_track",
		Type:    remote.ActionDelete,
		Target:  entity.TrackRef(id),
		Apply: func(tx *Tx) error {
			uid, err := tx.CurrentUserID()
			if err != nil {
				return err
			}
			t, err := tx.Track(id)
			if err != nil {
				return err
			}
			if t.OwnerID != uid {
				return ErrNotOwner
			}
			if t.MarkedDeleted || t.IsDelete {
				return ErrDuplicateAction
			}
			owner, err := tx.User(uid)
			if err != nil && !errors.Is(err, ErrNotCached) {
				return err
			}

			t.MarkedDeleted = true
			if err := tx.PutTrack(t); err != nil {
				return err
			}
			if owner == nil {
				return nil
			}
			owner.TrackCount = decrement(owner.TrackCount)
			if owner.ArtistPickTrackID != nil && *owner.ArtistPickTrackID == id {
				owner.ArtistPickTrackID = nil
			}
			return tx.PutUser(owner)
		},
	})
}

// TrackUpdate lists the editable fields of a track. Nil fields are kept.
type TrackUpdate struct {
	Title           *string                 `json:"title,omitempty"`
	Genre           *string                 `json:"genre,omitempty"`
	Mood            *string                 `json:"mood,omitempty"`
	Tags            *string                 `json:"tags,omitempty"`
	IsUnlisted      *bool                   `json:"is_unlisted,omitempty"`
	FieldVisibility *entity.FieldVisibility `json:"field_visibility,omitempty"`
}

func (u TrackUpdate) apply(t *entity.Track) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Genre != nil {
		t.Genre = *u.Genre
	}
	if u.Mood != nil {
		t.Mood = *u.Mood
	}
	if u.Tags != nil {
		t.Tags = *u.Tags
	}
	if u.IsUnlisted != nil {
		t.IsUnlisted = *u.IsUnlisted
	}
	if u.FieldVisibility != nil {
		fv := *u.FieldVisibility
		t.FieldVisibility = &fv
		t.VisibilityRepaired = false
	}
}

// UpdateTrack edits one of the current user's tracks. When the server
// answers with the stored track, it replaces the optimistic copy.
func (c *Coordinator) UpdateTrack(ctx context.Context, id entity.ID, update TrackUpdate) (*Pending, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "encode track update")
	}

	return c.Start(ctx, Mutation{
		Feature: "update_track",
		Type:    remote.ActionUpdate,
		Target:  entity.TrackRef(id),
		Payload: payload,
		Apply: func(tx *Tx) error {
			uid, err := tx.CurrentUserID()
			if err != nil {
				return err
			}
			t, err := tx.Track(id)
			if err != nil {
				return err
			}
			if t.OwnerID != uid {
				return ErrNotOwner
			}
			update.apply(t)
			return tx.PutTrack(t)
		},
		Reconcile: func(tx *Tx, resp json.RawMessage) error {
			var server entity.Track
			if err := json.Unmarshal(resp, &server); err != nil {
				return errors.Wrap(err, errors.CategoryExternal, "decode updated track")
			}
			if server.TrackID != id {
				return errors.New("server returned a different track", errors.CategoryExternal).
					WithMetadata(map[string]any{"expected": int64(id), "got": int64(server.TrackID)})
			}
			return tx.PutTrack(&server)
		},
	})
}

func decrement(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return n - 1
}
