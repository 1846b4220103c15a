package entity

// PlaylistTrack is one entry of a collection's ordered contents.
type PlaylistTrack struct {
	TrackID   ID    `json:"track" msgpack:"track"`
	Timestamp int64 `json:"time" msgpack:"time"`
}

// PlaylistContents is the ordered track list of a collection.
type PlaylistContents struct {
	TrackIDs []PlaylistTrack `json:"track_ids" msgpack:"track_ids"`
}

// Collection is a normalized playlist or album. User and Tracks are only
// populated on raw payloads.
type Collection struct {
	PlaylistID             ID               `json:"playlist_id" msgpack:"playlist_id"`
	PlaylistName           string           `json:"playlist_name" msgpack:"playlist_name"`
	Permalink              string           `json:"permalink" msgpack:"permalink"`
	PlaylistOwnerID        ID               `json:"playlist_owner_id" msgpack:"playlist_owner_id"`
	User                   *User            `json:"user,omitempty" msgpack:"-"`
	Tracks                 []*Track         `json:"tracks,omitempty" msgpack:"-"`
	PlaylistContents       PlaylistContents `json:"playlist_contents" msgpack:"playlist_contents"`
	IsAlbum                bool             `json:"is_album" msgpack:"is_album"`
	IsPrivate              bool             `json:"is_private" msgpack:"is_private"`
	IsDelete               bool             `json:"is_delete" msgpack:"is_delete"`
	SaveCount              int64            `json:"save_count" msgpack:"save_count"`
	RepostCount            int64            `json:"repost_count" msgpack:"repost_count"`
	HasCurrentUserSaved    bool             `json:"has_current_user_saved" msgpack:"has_current_user_saved"`
	HasCurrentUserReposted bool             `json:"has_current_user_reposted" msgpack:"has_current_user_reposted"`

	MarkedDeleted bool `json:"_marked_deleted,omitempty" msgpack:"_marked_deleted"`
}

func (c *Collection) EntityRef() Ref { return CollectionRef(c.PlaylistID) }

// IndexKey is the secondary cache key for a collection: its permalink.
func (c *Collection) IndexKey() string { return c.Permalink }

// TrackRefs returns refs to the collection's tracks in order.
func (c *Collection) TrackRefs() []Ref {
	refs := make([]Ref, 0, len(c.PlaylistContents.TrackIDs))
	for _, pt := range c.PlaylistContents.TrackIDs {
		refs = append(refs, TrackRef(pt.TrackID))
	}
	return refs
}

// Clone returns a deep copy of c.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	out := *c
	out.User = c.User.Clone()
	if c.Tracks != nil {
		out.Tracks = make([]*Track, len(c.Tracks))
		for i, t := range c.Tracks {
			out.Tracks[i] = t.Clone()
		}
	}
	out.PlaylistContents.TrackIDs = cloneSlice(c.PlaylistContents.TrackIDs)
	return &out
}
