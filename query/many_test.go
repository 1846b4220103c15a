package query

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/loader"
	"github.com/goliatone/go-entity-cache/pkg/testsupport"
)

type fakePresence struct {
	mu      sync.Mutex
	present map[entity.Ref]bool
	err     error
}

func (p *fakePresence) Contains(ctx context.Context, ref entity.Ref) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[ref], p.err
}

func (p *fakePresence) add(refs ...entity.Ref) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range refs {
		p.present[r] = true
	}
}

func TestGetMany_OrderAndMisses(t *testing.T) {
	src := newFakeTracks()
	src.setRemote(&entity.Track{TrackID: 1, Title: "one"})
	src.setRemote(&entity.Track{TrackID: 3, Title: "three"})
	c := newTestCoordinator(t, src, newFakeClock(), DefaultConfig())

	res := c.GetMany(context.Background(), []entity.ID{3, 2, 1})
	if !res.Ready() {
		t.Fatalf("expected ready aggregate, got %s (%v)", res.Status, res.Err)
	}
	if len(res.Data) != 2 || res.Data[0].TrackID != 3 || res.Data[1].TrackID != 1 {
		t.Errorf("expected [3 1] in request order, got %+v", res.Data)
	}
	if len(res.Results) != 3 || res.Results[1].Found {
		t.Errorf("expected id 2 to be reported as not found, got %+v", res.Results)
	}
}

func TestGetMany_WorstOf(t *testing.T) {
	boom := stderrors.New("boom")
	tests := []struct {
		name    string
		results []Status
		want    Status
	}{
		{name: "all success", results: []Status{StatusSuccess, StatusSuccess}, want: StatusSuccess},
		{name: "error wins over success", results: []Status{StatusSuccess, StatusError}, want: StatusError},
		{name: "loading wins over error", results: []Status{StatusError, StatusLoading, StatusSuccess}, want: StatusLoading},
		{name: "disabled ignored", results: []Status{StatusDisabled, StatusSuccess}, want: StatusSuccess},
		{name: "only disabled", results: []Status{StatusDisabled}, want: StatusDisabled},
	}

	c := newTestCoordinator(t, newFakeTracks(), newFakeClock(), DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]entity.ID, len(tt.results))
			results := make([]Result[*entity.Track], len(tt.results))
			for i, s := range tt.results {
				ids[i] = entity.ID(i + 1)
				results[i] = Result[*entity.Track]{Status: s}
				if s == StatusError {
					results[i].Err = boom
				}
			}
			got := c.aggregate(context.Background(), ids, results)
			if got.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Status)
			}
		})
	}
}

func TestGetMany_GatesOnLegacyPresence(t *testing.T) {
	src := newFakeTracks()
	src.setRemote(&entity.Track{TrackID: 1})
	src.setRemote(&entity.Track{TrackID: 2})
	presence := &fakePresence{present: map[entity.Ref]bool{entity.TrackRef(1): true}}
	c := newTestCoordinator(t, src, newFakeClock(), DefaultConfig(), WithPresence(presence))
	ctx := context.Background()

	res := c.GetMany(ctx, []entity.ID{1, 2})
	if res.Ready() || res.Status != StatusLoading {
		t.Fatalf("expected loading while id 2 is not mirrored, got %s", res.Status)
	}
	if len(res.Unmirrored) != 1 || res.Unmirrored[0] != 2 {
		t.Errorf("expected unmirrored [2], got %v", res.Unmirrored)
	}

	presence.add(entity.TrackRef(2))
	if res := c.GetMany(ctx, []entity.ID{1, 2}); !res.Ready() {
		t.Errorf("expected ready once mirrored, got %s", res.Status)
	}
}

func TestPeekMany_LoadingUntilFetched(t *testing.T) {
	src := newFakeTracks()
	src.setRemote(&entity.Track{TrackID: 1})
	src.setLocal(&entity.Track{TrackID: 2})
	c := newTestCoordinator(t, src, newFakeClock(), DefaultConfig())
	ctx := context.Background()

	if res := c.PeekMany(ctx, []entity.ID{1, 2}); res.Status != StatusLoading {
		t.Fatalf("expected loading, got %s", res.Status)
	}
	c.Wait()
	if res := c.PeekMany(ctx, []entity.ID{1, 2}); !res.Ready() {
		t.Errorf("expected ready, got %s", res.Status)
	}
}

func TestClient_BatchedReadsAndObservedWrites(t *testing.T) {
	codec := testsupport.MustCodec(t)
	remoteSrc := testsupport.NewFakeRemote("fake", codec)
	remoteSrc.AddTracks(
		&entity.Track{TrackID: 1, Title: "one", OwnerID: 10},
		&entity.Track{TrackID: 2, Title: "two", OwnerID: 10},
	)
	remoteSrc.AddUsers(&entity.User{UserID: 10, Handle: "owner"})

	ec := entitycache.New(entitycache.WithLogger(logging.Nop()))
	l := loader.New(remoteSrc, codec, ec)
	bcfg := batcher.DefaultConfig()
	bcfg.Wait = 20 * time.Millisecond
	regs := Registries{
		Tracks:      batcher.NewRegistry[entity.ID, *entity.Track]("track", bcfg, l.Tracks, batcher.WithLogger(logging.Nop())),
		Users:       batcher.NewRegistry[entity.ID, *entity.User]("user", bcfg, l.Users, batcher.WithLogger(logging.Nop())),
		Collections: batcher.NewRegistry[entity.ID, *entity.Collection]("collection", bcfg, l.Collections, batcher.WithLogger(logging.Nop())),
	}
	defer regs.Tracks.Close()
	defer regs.Users.Close()
	defer regs.Collections.Close()

	store, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	clock := newFakeClock()
	partition := func() batcher.Partition { return batcher.Partition{SourceID: "fake", UserID: 10} }
	cl := NewClient(ec, regs, store, partition, DefaultConfig(), WithClock(clock.Now), WithLogger(logging.Nop()))
	defer cl.Close()
	ctx := context.Background()

	res := cl.Tracks.GetMany(ctx, []entity.ID{1, 2})
	if !res.Ready() || len(res.Data) != 2 {
		t.Fatalf("unexpected aggregate %+v", res)
	}
	if n := len(remoteSrc.BulkCalls()); n != 1 {
		t.Errorf("expected one bulk call for both ids, got %d", n)
	}

	clock.Advance(2 * time.Minute)
	ec.ReplaceTracks(ctx, &entity.Track{TrackID: 1, Title: "edited", OwnerID: 10})

	r := cl.Tracks.Get(ctx, 1)
	if r.Stale || r.Data.Title != "edited" {
		t.Errorf("expected replaced track to be fresh, got %+v", r)
	}

	if acc := cl.Account(ctx, 10); !acc.Found || acc.Data.Handle != "owner" {
		t.Errorf("expected account to be readable, got %+v", acc)
	}

	cl.Cancel(entity.TrackRef(2))
	if err := cl.Invalidate(ctx, entity.TrackRef(2)); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := cl.ResetAll(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
}
