package entity

import "strings"

// User is a normalized user record.
type User struct {
	UserID                ID     `json:"user_id" msgpack:"user_id"`
	Handle                string `json:"handle" msgpack:"handle"`
	Name                  string `json:"name" msgpack:"name"`
	IsVerified            bool   `json:"is_verified" msgpack:"is_verified"`
	IsDeactivated         bool   `json:"is_deactivated" msgpack:"is_deactivated"`
	FollowerCount         int64  `json:"follower_count" msgpack:"follower_count"`
	FolloweeCount         int64  `json:"followee_count" msgpack:"followee_count"`
	TrackCount            int64  `json:"track_count" msgpack:"track_count"`
	PlaylistCount         int64  `json:"playlist_count" msgpack:"playlist_count"`
	RepostCount           int64  `json:"repost_count" msgpack:"repost_count"`
	TrackSaveCount        int64  `json:"track_save_count" msgpack:"track_save_count"`
	DoesCurrentUserFollow bool   `json:"does_current_user_follow" msgpack:"does_current_user_follow"`
	ArtistPickTrackID     *ID    `json:"artist_pick_track_id,omitempty" msgpack:"artist_pick_track_id"`
}

func (u *User) EntityRef() Ref { return UserRef(u.UserID) }

// IndexKey is the secondary cache key for a user: the lower-cased handle.
func (u *User) IndexKey() string { return HandleKey(u.Handle) }

// HandleKey normalizes a handle for secondary index lookups.
func HandleKey(handle string) string {
	return strings.ToLower(strings.TrimPrefix(handle, "@"))
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.ArtistPickTrackID != nil {
		id := *u.ArtistPickTrackID
		c.ArtistPickTrackID = &id
	}
	return &c
}
