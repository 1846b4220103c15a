package entity

// Related holds the entities that were embedded in a payload and stripped
// during normalization.
type Related struct {
	Users  []*User
	Tracks []*Track
}

func (r *Related) merge(o Related) {
	r.Users = append(r.Users, o.Users...)
	r.Tracks = append(r.Tracks, o.Tracks...)
}

// Empty reports whether nothing was stripped.
func (r Related) Empty() bool {
	return len(r.Users) == 0 && len(r.Tracks) == 0
}

// NormalizeTrack returns a cache-ready copy of t and the entities it embedded.
// The input is not modified.
func NormalizeTrack(t *Track) (*Track, Related) {
	var rel Related
	out := t.Clone()

	if out.User != nil {
		if out.OwnerID == 0 {
			out.OwnerID = out.User.UserID
		}
		rel.Users = append(rel.Users, out.User)
		out.User = nil
	}

	if out.RemixOf != nil {
		if out.RemixOf.Tracks == nil {
			out.RemixOf.Tracks = []RemixTrack{}
		}
		for i := range out.RemixOf.Tracks {
			parent := &out.RemixOf.Tracks[i]
			if parent.User != nil {
				if parent.UserID == 0 {
					parent.UserID = parent.User.UserID
				}
				rel.Users = append(rel.Users, parent.User)
				parent.User = nil
			}
		}
	}

	out.CoSign = coSignOf(out)

	if out.FieldVisibility == nil {
		fv := DefaultFieldVisibility()
		out.FieldVisibility = &fv
		out.VisibilityRepaired = true
	}

	if out.FolloweeSaves == nil {
		out.FolloweeSaves = []FolloweeAction{}
	}
	if out.FolloweeReposts == nil {
		out.FolloweeReposts = []FolloweeAction{}
	}

	return out, rel
}

// NormalizeUser returns a cache-ready copy of u. Users embed nothing.
func NormalizeUser(u *User) *User {
	return u.Clone()
}

// NormalizeCollection returns a cache-ready copy of c and the entities it
// embedded, including the owners of embedded tracks.
func NormalizeCollection(c *Collection) (*Collection, Related) {
	var rel Related
	out := c.Clone()

	if out.User != nil {
		if out.PlaylistOwnerID == 0 {
			out.PlaylistOwnerID = out.User.UserID
		}
		rel.Users = append(rel.Users, out.User)
		out.User = nil
	}

	for _, t := range out.Tracks {
		if t == nil {
			continue
		}
		nt, trel := NormalizeTrack(t)
		rel.Tracks = append(rel.Tracks, nt)
		rel.merge(trel)
	}
	out.Tracks = nil

	if out.PlaylistContents.TrackIDs == nil {
		out.PlaylistContents.TrackIDs = []PlaylistTrack{}
	}

	return out, rel
}

// RecomputeCoSign refreshes the derived co-sign field after the remix
// relation flags changed.
func (t *Track) RecomputeCoSign() {
	t.CoSign = coSignOf(t)
}

func coSignOf(t *Track) *RemixTrack {
	parent, ok := t.RemixParent()
	if !ok || !parent.CoSigned() {
		return nil
	}
	cs := parent.clone()
	return &cs
}
