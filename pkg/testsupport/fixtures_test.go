package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/remote"
)

func TestLoadCatalog(t *testing.T) {
	c := LoadCatalog(t, FixturePath("catalog.json"))

	if len(c.Tracks) != 3 || len(c.Users) != 2 || len(c.Collections) != 1 {
		t.Fatalf("unexpected catalog sizes: %d tracks, %d users, %d collections",
			len(c.Tracks), len(c.Users), len(c.Collections))
	}
	if c.Tracks[0].Title != "First Light" || c.Tracks[0].SaveCount != 4 {
		t.Errorf("unexpected first track %+v", c.Tracks[0])
	}
	if got := c.Collections[0].PlaylistContents.TrackIDs; len(got) != 2 || got[1].TrackID != 3 {
		t.Errorf("unexpected playlist contents %+v", got)
	}
	if len(c.Lineups) != 2 || c.Lineups[0].Refs[1] != entity.CollectionRef(7) {
		t.Errorf("unexpected lineups %+v", c.Lineups)
	}
}

func TestSeedFixture_ServesBulkFetch(t *testing.T) {
	codec := MustCodec(t)
	f := NewFakeRemote("fixture", codec)
	f.SeedFixture(t, FixturePath("catalog.json"))

	ids, err := codec.EncodeAll([]entity.ID{1, 3, 99})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raws, err := f.BulkFetch(context.Background(), remote.BulkRequest{Kind: entity.KindTrack, IDs: ids})
	if err != nil {
		t.Fatalf("bulk fetch: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 payloads, missing ids skipped, got %d", len(raws))
	}

	var tr entity.Track
	if err := json.Unmarshal(raws[1], &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.TrackID != 3 || tr.OwnerID != 11 {
		t.Errorf("unexpected payload %+v", tr)
	}
	if got := f.DecodedIDs(f.BulkCalls()[0]); len(got) != 3 || got[2] != 99 {
		t.Errorf("expected the request to be recorded, got %v", got)
	}
}

func TestSeedFixture_ServesPages(t *testing.T) {
	f := NewFakeRemote("fixture", MustCodec(t))
	f.SeedFixture(t, FixturePath("catalog.json"))
	ctx := context.Background()

	tests := []struct {
		name     string
		req      remote.PageRequest
		wantKind []entity.Kind
		wantNext string
	}{
		{
			name:     "first page",
			req:      remote.PageRequest{Lineup: "feed", Params: map[string]string{"filter": "all"}, Limit: 2},
			wantKind: []entity.Kind{entity.KindTrack, entity.KindCollection},
			wantNext: "2",
		},
		{
			name:     "last page",
			req:      remote.PageRequest{Lineup: "feed", Params: map[string]string{"filter": "all"}, Cursor: "2", Limit: 2},
			wantKind: []entity.Kind{entity.KindTrack},
		},
		{
			name:     "no params",
			req:      remote.PageRequest{Lineup: "trending", Limit: 10},
			wantKind: []entity.Kind{entity.KindTrack},
		},
		{
			name: "unknown params",
			req:  remote.PageRequest{Lineup: "feed", Params: map[string]string{"filter": "reposts"}, Limit: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.FetchPage(ctx, tt.req)
			if err != nil {
				t.Fatalf("fetch page: %v", err)
			}
			if len(page.Items) != len(tt.wantKind) {
				t.Fatalf("expected %d items, got %d", len(tt.wantKind), len(page.Items))
			}
			for i, item := range page.Items {
				if item.Kind != tt.wantKind[i] {
					t.Errorf("item %d: expected kind %s, got %s", i, tt.wantKind[i], item.Kind)
				}
			}
			if page.Next != tt.wantNext {
				t.Errorf("expected next %q, got %q", tt.wantNext, page.Next)
			}
		})
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := TempFile(t, []byte(`{"user_id": 5, "handle": "@Someone"}`))

	var u entity.User
	LoadFixtureJSON(t, path, &u)

	if u.UserID != 5 || u.IndexKey() != "someone" {
		t.Errorf("unexpected user %+v", u)
	}
}

func TestTempFile(t *testing.T) {
	content := []byte("temporary file content")
	path := TempFile(t, content)

	result, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read temp file: %v", err)
	}
	if string(result) != string(content) {
		t.Errorf("expected %q, got %q", content, result)
	}
}

func TestPaths(t *testing.T) {
	if got, want := FixturePath("test.json"), filepath.Join("testdata", "test.json"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got, want := GoldenPath("output.txt"), filepath.Join("testdata", "golden", "output.txt"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCompareJSONWithGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden", "refs.json")
	refs := []entity.Ref{entity.TrackRef(1), entity.CollectionRef(7)}

	// First run creates the golden file.
	CompareJSONWithGolden(t, golden, refs)

	data, err := os.ReadFile(golden)
	if err != nil {
		t.Fatalf("golden file should have been created: %v", err)
	}
	var back []entity.Ref
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("golden file is not valid JSON: %v", err)
	}
	if len(back) != 2 || back[1] != entity.CollectionRef(7) {
		t.Errorf("unexpected golden content %s", data)
	}

	// Second run compares against it.
	CompareJSONWithGolden(t, golden, refs)
}
