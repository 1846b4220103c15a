package mutation

import (
	"context"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
)

// FollowUser follows a user. The followee's follower count and the current
// user's followee count move together.
func (c *Coordinator) FollowUser(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "follow_user",
		Type:    remote.ActionFollow,
		Target:  entity.UserRef(id),
		Apply: func(tx *Tx) error {
			return applyFollow(tx, id, true)
		},
	})
}

// UnfollowUser stops following a user.
func (c *Coordinator) UnfollowUser(ctx context.Context, id entity.ID) (*Pending, error) {
	return c.Start(ctx, Mutation{
		Feature: "unfollow_user",
		Type:    remote.ActionUnfollow,
		Target:  entity.UserRef(id),
		Apply: func(tx *Tx) error {
			return applyFollow(tx, id, false)
		},
	})
}

func applyFollow(tx *Tx, id entity.ID, follow bool) error {
	uid, err := tx.CurrentUserID()
	if err != nil {
		return err
	}
	if id == uid {
		return ErrSelfAction
	}
	followee, err := tx.User(id)
	if err != nil {
		return err
	}
	if followee.DoesCurrentUserFollow == follow {
		return ErrDuplicateAction
	}
	me, err := tx.User(uid)
	if err != nil && !errors.Is(err, ErrNotCached) {
		return err
	}

	followee.DoesCurrentUserFollow = follow
	if follow {
		followee.FollowerCount++
	} else {
		followee.FollowerCount = decrement(followee.FollowerCount)
	}
	if err := tx.PutUser(followee); err != nil {
		return err
	}

	if me == nil {
		return nil
	}
	if follow {
		me.FolloweeCount++
	} else {
		me.FolloweeCount = decrement(me.FolloweeCount)
	}
	return tx.PutUser(me)
}

// SetArtistPick pins one of the current user's tracks on their profile.
// A zero id clears the pick.
func (c *Coordinator) SetArtistPick(ctx context.Context, trackID entity.ID) (*Pending, error) {
	target := entity.UserRef(c.session.CurrentUserID())
	return c.Start(ctx, Mutation{
		Feature: "set_artist_pick",
		Type:    remote.ActionUpdate,
		Target:  target,
		Apply: func(tx *Tx) error {
			uid, err := tx.CurrentUserID()
			if err != nil {
				return err
			}
			me, err := tx.User(uid)
			if err != nil {
				return err
			}
			if trackID == 0 {
				me.ArtistPickTrackID = nil
				return tx.PutUser(me)
			}
			t, err := tx.Track(trackID)
			if err != nil {
				return err
			}
			if t.OwnerID != uid {
				return ErrNotOwner
			}
			pick := trackID
			me.ArtistPickTrackID = &pick
			return tx.PutUser(me)
		},
	})
}
