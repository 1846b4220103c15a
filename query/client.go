package query

import (
	"context"

	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
)

// Registries holds the batcher registry of each entity kind.
type Registries struct {
	Tracks      *batcher.Registry[entity.ID, *entity.Track]
	Users       *batcher.Registry[entity.ID, *entity.User]
	Collections *batcher.Registry[entity.ID, *entity.Collection]
}

// Client bundles the coordinators of all entity kinds and keeps their query
// records in step with cache writes.
type Client struct {
	Tracks      *Coordinator[*entity.Track]
	Users       *Coordinator[*entity.User]
	Collections *Coordinator[*entity.Collection]

	account     Config
	unsubscribe func()
}

// NewClient creates the three coordinators over c and subscribes them to
// cache writes.
func NewClient(c *entitycache.Cache, regs Registries, store cache.CacheService, partition func() batcher.Partition, cfg Config, opts ...Option) *Client {
	cl := &Client{
		Tracks:      New(TrackSource(c, regs.Tracks), store, partition, cfg, opts...),
		Users:       New(UserSource(c, regs.Users), store, partition, cfg, opts...),
		Collections: New(CollectionSource(c, regs.Collections), store, partition, cfg, opts...),
		account:     AccountConfig(),
	}
	cl.unsubscribe = c.Subscribe(cl.observe)
	return cl
}

func (cl *Client) observe(ev entitycache.WriteEvent) {
	switch ev.Ref.Kind {
	case entity.KindTrack:
		cl.Tracks.Observe(ev)
	case entity.KindUser:
		cl.Users.Observe(ev)
	case entity.KindCollection:
		cl.Collections.Observe(ev)
	}
}

// Account reads the signed-in user. It is cached without staleness and must
// be invalidated after mutations touching the account.
func (cl *Client) Account(ctx context.Context, id entity.ID) Result[*entity.User] {
	return cl.Users.GetWith(ctx, id, cl.account)
}

// SetAccountConfig overrides the policy used by Account.
func (cl *Client) SetAccountConfig(cfg Config) {
	cl.account = cfg
}

// Cancel supersedes any in-flight fetch of ref.
func (cl *Client) Cancel(ref entity.Ref) {
	switch ref.Kind {
	case entity.KindTrack:
		cl.Tracks.Cancel(ref.ID)
	case entity.KindUser:
		cl.Users.Cancel(ref.ID)
	case entity.KindCollection:
		cl.Collections.Cancel(ref.ID)
	}
}

// CancelAll supersedes every in-flight fetch of every kind.
func (cl *Client) CancelAll() {
	cl.Tracks.CancelAll()
	cl.Users.CancelAll()
	cl.Collections.CancelAll()
}

// Invalidate drops the query record of ref.
func (cl *Client) Invalidate(ctx context.Context, ref entity.Ref) error {
	switch ref.Kind {
	case entity.KindTrack:
		return cl.Tracks.Invalidate(ctx, ref.ID)
	case entity.KindUser:
		return cl.Users.Invalidate(ctx, ref.ID)
	case entity.KindCollection:
		return cl.Collections.Invalidate(ctx, ref.ID)
	}
	return nil
}

// ResetAll drops every query record.
func (cl *Client) ResetAll(ctx context.Context) error {
	for _, reset := range []func(context.Context) error{
		cl.Tracks.Reset,
		cl.Users.Reset,
		cl.Collections.Reset,
	} {
		if err := reset(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops observing cache writes and waits for background fetches.
func (cl *Client) Close() {
	if cl.unsubscribe != nil {
		cl.unsubscribe()
	}
	cl.Tracks.Wait()
	cl.Users.Wait()
	cl.Collections.Wait()
}
