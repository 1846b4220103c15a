package entity

// FieldVisibility controls which optional track fields are shown.
type FieldVisibility struct {
	Genre     bool `json:"genre" msgpack:"genre"`
	Mood      bool `json:"mood" msgpack:"mood"`
	Tags      bool `json:"tags" msgpack:"tags"`
	Share     bool `json:"share" msgpack:"share"`
	PlayCount bool `json:"play_count" msgpack:"play_count"`
	Remixes   bool `json:"remixes" msgpack:"remixes"`
}

// DefaultFieldVisibility shows every field.
func DefaultFieldVisibility() FieldVisibility {
	return FieldVisibility{
		Genre:     true,
		Mood:      true,
		Tags:      true,
		Share:     true,
		PlayCount: true,
		Remixes:   true,
	}
}

// RemixTrack is the relation between a remix and one of its parent tracks.
type RemixTrack struct {
	ParentTrackID          ID    `json:"parent_track_id" msgpack:"parent_track_id"`
	UserID                 ID    `json:"user_id" msgpack:"user_id"`
	User                   *User `json:"user,omitempty" msgpack:"-"`
	HasRemixAuthorSaved    bool  `json:"has_remix_author_saved" msgpack:"has_remix_author_saved"`
	HasRemixAuthorReposted bool  `json:"has_remix_author_reposted" msgpack:"has_remix_author_reposted"`
}

// CoSigned reports whether the parent's author saved or reposted the remix.
func (r RemixTrack) CoSigned() bool {
	return r.HasRemixAuthorSaved || r.HasRemixAuthorReposted
}

// RemixOf lists the parents of a remix.
type RemixOf struct {
	Tracks []RemixTrack `json:"tracks" msgpack:"tracks"`
}

// FolloweeAction is a save or repost made by someone the current user follows.
type FolloweeAction struct {
	UserID ID `json:"user_id" msgpack:"user_id"`
}

// Track is a normalized track record. User is only populated on raw payloads
// and is always nil once cached.
type Track struct {
	TrackID                ID               `json:"track_id" msgpack:"track_id"`
	Title                  string           `json:"title" msgpack:"title"`
	Permalink              string           `json:"permalink" msgpack:"permalink"`
	OwnerID                ID               `json:"owner_id" msgpack:"owner_id"`
	User                   *User            `json:"user,omitempty" msgpack:"-"`
	Genre                  string           `json:"genre" msgpack:"genre"`
	Mood                   string           `json:"mood" msgpack:"mood"`
	Tags                   string           `json:"tags" msgpack:"tags"`
	FieldVisibility        *FieldVisibility `json:"field_visibility,omitempty" msgpack:"field_visibility"`
	IsUnlisted             bool             `json:"is_unlisted" msgpack:"is_unlisted"`
	IsDelete               bool             `json:"is_delete" msgpack:"is_delete"`
	PlayCount              int64            `json:"play_count" msgpack:"play_count"`
	SaveCount              int64            `json:"save_count" msgpack:"save_count"`
	RepostCount            int64            `json:"repost_count" msgpack:"repost_count"`
	HasCurrentUserSaved    bool             `json:"has_current_user_saved" msgpack:"has_current_user_saved"`
	HasCurrentUserReposted bool             `json:"has_current_user_reposted" msgpack:"has_current_user_reposted"`
	RemixOf                *RemixOf         `json:"remix_of,omitempty" msgpack:"remix_of"`
	FolloweeSaves          []FolloweeAction `json:"followee_saves" msgpack:"followee_saves"`
	FolloweeReposts        []FolloweeAction `json:"followee_reposts" msgpack:"followee_reposts"`

	// Derived at write time.
	CoSign             *RemixTrack `json:"_co_sign,omitempty" msgpack:"_co_sign"`
	VisibilityRepaired bool        `json:"_visibility_repaired,omitempty" msgpack:"_visibility_repaired"`
	MarkedDeleted      bool        `json:"_marked_deleted,omitempty" msgpack:"_marked_deleted"`
}

func (t *Track) EntityRef() Ref { return TrackRef(t.TrackID) }

// IndexKey is the secondary cache key for a track: its permalink.
func (t *Track) IndexKey() string { return t.Permalink }

// RemixParent returns the first remix parent relation, if any.
func (t *Track) RemixParent() (*RemixTrack, bool) {
	if t.RemixOf == nil || len(t.RemixOf.Tracks) == 0 {
		return nil, false
	}
	return &t.RemixOf.Tracks[0], true
}

// Clone returns a deep copy of t.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := *t
	c.User = t.User.Clone()
	if t.FieldVisibility != nil {
		fv := *t.FieldVisibility
		c.FieldVisibility = &fv
	}
	if t.RemixOf != nil {
		c.RemixOf = &RemixOf{Tracks: cloneRemixTracks(t.RemixOf.Tracks)}
	}
	if t.CoSign != nil {
		cs := t.CoSign.clone()
		c.CoSign = &cs
	}
	c.FolloweeSaves = cloneSlice(t.FolloweeSaves)
	c.FolloweeReposts = cloneSlice(t.FolloweeReposts)
	return &c
}

func (r RemixTrack) clone() RemixTrack {
	r.User = r.User.Clone()
	return r
}

func cloneRemixTracks(in []RemixTrack) []RemixTrack {
	if in == nil {
		return nil
	}
	out := make([]RemixTrack, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
