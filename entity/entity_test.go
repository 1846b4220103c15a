package entity

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestNormalizeTrack_StripsEmbeddedUsers(t *testing.T) {
	raw := &Track{
		TrackID: 1,
		Title:   "first",
		User:    &User{UserID: 10, Handle: "Owner"},
		RemixOf: &RemixOf{Tracks: []RemixTrack{
			{ParentTrackID: 2, User: &User{UserID: 20, Handle: "parent"}},
		}},
	}

	got, rel := NormalizeTrack(raw)

	if got.User != nil {
		t.Error("expected embedded user to be stripped")
	}
	if got.OwnerID != 10 {
		t.Errorf("expected owner id 10, got %d", got.OwnerID)
	}
	if got.RemixOf.Tracks[0].User != nil {
		t.Error("expected remix parent user to be stripped")
	}
	if got.RemixOf.Tracks[0].UserID != 20 {
		t.Errorf("expected remix parent user id 20, got %d", got.RemixOf.Tracks[0].UserID)
	}
	if len(rel.Users) != 2 {
		t.Fatalf("expected 2 related users, got %d", len(rel.Users))
	}
	if raw.User == nil {
		t.Error("input must not be modified")
	}
}

func TestNormalizeTrack_DerivedFields(t *testing.T) {
	tests := []struct {
		name         string
		in           *Track
		wantCoSign   bool
		wantRepaired bool
	}{
		{
			name:         "plain track gets default visibility",
			in:           &Track{TrackID: 1},
			wantRepaired: true,
		},
		{
			name: "explicit visibility is kept",
			in: &Track{
				TrackID:         1,
				FieldVisibility: &FieldVisibility{Genre: true},
			},
		},
		{
			name: "remix saved by parent author is co-signed",
			in: &Track{
				TrackID:         1,
				FieldVisibility: &FieldVisibility{},
				RemixOf: &RemixOf{Tracks: []RemixTrack{
					{ParentTrackID: 2, UserID: 3, HasRemixAuthorSaved: true},
				}},
			},
			wantCoSign: true,
		},
		{
			name: "remix without author action is not co-signed",
			in: &Track{
				TrackID:         1,
				FieldVisibility: &FieldVisibility{},
				RemixOf: &RemixOf{Tracks: []RemixTrack{
					{ParentTrackID: 2, UserID: 3},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := NormalizeTrack(tt.in)
			if (got.CoSign != nil) != tt.wantCoSign {
				t.Errorf("CoSign set = %v, want %v", got.CoSign != nil, tt.wantCoSign)
			}
			if got.VisibilityRepaired != tt.wantRepaired {
				t.Errorf("VisibilityRepaired = %v, want %v", got.VisibilityRepaired, tt.wantRepaired)
			}
			if got.FieldVisibility == nil {
				t.Error("expected field visibility to be set")
			}
			if got.FolloweeSaves == nil || got.FolloweeReposts == nil {
				t.Error("expected followee slices to default to empty")
			}
		})
	}
}

func TestNormalizeCollection(t *testing.T) {
	raw := &Collection{
		PlaylistID: 5,
		User:       &User{UserID: 1},
		Tracks: []*Track{
			{TrackID: 11, User: &User{UserID: 2}},
			{TrackID: 12, OwnerID: 1},
		},
	}

	got, rel := NormalizeCollection(raw)

	if got.User != nil || got.Tracks != nil {
		t.Error("expected embedded user and tracks to be stripped")
	}
	if got.PlaylistOwnerID != 1 {
		t.Errorf("expected owner 1, got %d", got.PlaylistOwnerID)
	}
	if got.PlaylistContents.TrackIDs == nil {
		t.Error("expected empty track id list")
	}
	if len(rel.Tracks) != 2 {
		t.Fatalf("expected 2 related tracks, got %d", len(rel.Tracks))
	}
	if rel.Tracks[0].User != nil {
		t.Error("expected related tracks to be normalized")
	}
	if len(rel.Users) != 2 {
		t.Errorf("expected owner and track owner as related users, got %d", len(rel.Users))
	}
}

func TestTrackClone_IsDeep(t *testing.T) {
	orig := &Track{
		TrackID:         1,
		FieldVisibility: &FieldVisibility{Genre: true},
		RemixOf:         &RemixOf{Tracks: []RemixTrack{{ParentTrackID: 2}}},
		FolloweeSaves:   []FolloweeAction{{UserID: 3}},
	}

	c := orig.Clone()
	c.FieldVisibility.Genre = false
	c.RemixOf.Tracks[0].HasRemixAuthorSaved = true
	c.FolloweeSaves[0].UserID = 99

	if !orig.FieldVisibility.Genre {
		t.Error("field visibility shared with clone")
	}
	if orig.RemixOf.Tracks[0].HasRemixAuthorSaved {
		t.Error("remix relation shared with clone")
	}
	if orig.FolloweeSaves[0].UserID != 3 {
		t.Error("followee saves shared with clone")
	}
}

func TestTrack_DecodeRemotePayload(t *testing.T) {
	payload := []byte(`{
		"track_id": 42,
		"title": "song",
		"permalink": "/owner/song",
		"save_count": 5,
		"has_current_user_saved": false,
		"user": {"user_id": 7, "handle": "Owner"},
		"remix_of": {"tracks": [{"parent_track_id": 9, "user": {"user_id": 8}}]}
	}`)

	var tr Track
	if err := json.Unmarshal(payload, &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, rel := NormalizeTrack(&tr)
	if got.OwnerID != 7 || got.SaveCount != 5 {
		t.Errorf("unexpected track %+v", got)
	}
	if len(rel.Users) != 2 {
		t.Errorf("expected 2 related users, got %d", len(rel.Users))
	}
}

func TestHandleKey(t *testing.T) {
	if got := HandleKey("@SomeOne"); got != "someone" {
		t.Errorf("HandleKey = %q", got)
	}
}
