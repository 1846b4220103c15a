// Package entitycache is the single source of truth for normalized tracks,
// users and collections.
//
// Writes come in two flavours that cannot be confused at the call site:
//
//   - Prime* writes an entity only if its id is not cached yet (first writer
//     wins). Every fetch path uses it.
//   - Replace* always overwrites. Optimistic mutations, rollbacks and
//     background refetches use it.
//
// Both normalize the payload first and cache any embedded users or tracks in
// the same mode. Every write that lands is mirrored to the legacy store and
// announced to subscribers.
package entitycache

import (
	"context"
	"sync"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/rs/zerolog"
)

// Mode selects the write discipline.
type Mode int

const (
	// ModePrime writes only when the id is absent.
	ModePrime Mode = iota
	// ModeReplace always overwrites.
	ModeReplace
)

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "prime"
}

// Mirror receives every entity written to the cache. Implementations must
// not block for long and must swallow their own failures.
type Mirror interface {
	Mirror(ctx context.Context, entities ...entity.Entity)
}

// WriteEvent describes a write that landed in the cache.
type WriteEvent struct {
	Ref  entity.Ref
	Mode Mode
}

// Subscriber is notified after each landed write.
type Subscriber func(WriteEvent)

// Option configures a Cache.
type Option func(*Cache)

// WithMirror mirrors every landed write into m.
func WithMirror(m Mirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// Cache groups the per-kind stores.
type Cache struct {
	tracks      *Store[*entity.Track]
	users       *Store[*entity.User]
	collections *Store[*entity.Collection]

	mirror Mirror
	logger zerolog.Logger

	// exclusive orders compound read-check-write sequences against each
	// other. Single Prime and Replace calls do not take it.
	exclusive sync.Mutex

	mu      sync.RWMutex
	subs    map[uint64]Subscriber
	nextSub uint64
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		tracks:      NewStore[*entity.Track](entity.KindTrack, nil),
		users:       NewStore[*entity.User](entity.KindUser, entity.HandleKey),
		collections: NewStore[*entity.Collection](entity.KindCollection, nil),
		logger:      logging.WithComponent("entitycache"),
		subs:        make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Tracks() *Store[*entity.Track]           { return c.tracks }
func (c *Cache) Users() *Store[*entity.User]             { return c.users }
func (c *Cache) Collections() *Store[*entity.Collection] { return c.collections }

func (c *Cache) Track(id entity.ID) (*entity.Track, bool)           { return c.tracks.Get(id) }
func (c *Cache) User(id entity.ID) (*entity.User, bool)             { return c.users.Get(id) }
func (c *Cache) Collection(id entity.ID) (*entity.Collection, bool) { return c.collections.Get(id) }

// TrackByPermalink resolves a track through the permalink index.
func (c *Cache) TrackByPermalink(permalink string) (*entity.Track, bool) {
	return c.tracks.GetByKey(permalink)
}

// UserByHandle resolves a user through the handle index. Matching is case
// insensitive.
func (c *Cache) UserByHandle(handle string) (*entity.User, bool) {
	return c.users.GetByKey(handle)
}

// CollectionByPermalink resolves a collection through the permalink index.
func (c *Cache) CollectionByPermalink(permalink string) (*entity.Collection, bool) {
	return c.collections.GetByKey(permalink)
}

// Has reports whether ref is cached.
func (c *Cache) Has(ref entity.Ref) bool {
	switch ref.Kind {
	case entity.KindTrack:
		return c.tracks.Has(ref.ID)
	case entity.KindUser:
		return c.users.Has(ref.ID)
	case entity.KindCollection:
		return c.collections.Has(ref.ID)
	default:
		return false
	}
}

// Get returns a copy of the entity behind ref.
func (c *Cache) Get(ref entity.Ref) (entity.Entity, bool) {
	switch ref.Kind {
	case entity.KindTrack:
		if v, ok := c.tracks.Get(ref.ID); ok {
			return v, true
		}
	case entity.KindUser:
		if v, ok := c.users.Get(ref.ID); ok {
			return v, true
		}
	case entity.KindCollection:
		if v, ok := c.collections.Get(ref.ID); ok {
			return v, true
		}
	}
	return nil, false
}

// PrimeTracks caches tracks whose ids are absent and returns the normalized
// input.
func (c *Cache) PrimeTracks(ctx context.Context, tracks ...*entity.Track) []*entity.Track {
	var b batch
	out := b.addTracks(tracks)
	c.commit(ctx, ModePrime, &b)
	return out
}

// ReplaceTracks overwrites tracks and returns the normalized input.
func (c *Cache) ReplaceTracks(ctx context.Context, tracks ...*entity.Track) []*entity.Track {
	var b batch
	out := b.addTracks(tracks)
	c.commit(ctx, ModeReplace, &b)
	return out
}

// PrimeUsers caches users whose ids are absent.
func (c *Cache) PrimeUsers(ctx context.Context, users ...*entity.User) []*entity.User {
	var b batch
	out := b.addUsers(users)
	c.commit(ctx, ModePrime, &b)
	return out
}

// ReplaceUsers overwrites users.
func (c *Cache) ReplaceUsers(ctx context.Context, users ...*entity.User) []*entity.User {
	var b batch
	out := b.addUsers(users)
	c.commit(ctx, ModeReplace, &b)
	return out
}

// PrimeCollections caches collections whose ids are absent, together with
// their embedded tracks and users.
func (c *Cache) PrimeCollections(ctx context.Context, cols ...*entity.Collection) []*entity.Collection {
	var b batch
	out := b.addCollections(cols)
	c.commit(ctx, ModePrime, &b)
	return out
}

// ReplaceCollections overwrites collections and their embedded relations.
func (c *Cache) ReplaceCollections(ctx context.Context, cols ...*entity.Collection) []*entity.Collection {
	var b batch
	out := b.addCollections(cols)
	c.commit(ctx, ModeReplace, &b)
	return out
}

// Atomically runs fn while holding the cache's exclusive lock. Mutations and
// revalidating fetches use it so that a check of their own state and the
// write depending on it cannot interleave. fn must not call Atomically.
func (c *Cache) Atomically(fn func()) {
	c.exclusive.Lock()
	defer c.exclusive.Unlock()
	fn()
}

// Reset drops every cached entity. Subscribers and the mirror are not
// notified.
func (c *Cache) Reset() {
	c.exclusive.Lock()
	defer c.exclusive.Unlock()
	c.tracks.Clear()
	c.users.Clear()
	c.collections.Clear()
	c.logger.Debug().Msg("entity cache reset")
}

// Subscribe registers fn for landed writes and returns a function removing it.
func (c *Cache) Subscribe(fn Subscriber) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// batch collects normalized entities; related ones are written before the
// entities embedding them.
type batch struct {
	users       []*entity.User
	tracks      []*entity.Track
	collections []*entity.Collection
}

func (b *batch) addUsers(users []*entity.User) []*entity.User {
	out := make([]*entity.User, 0, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		nu := entity.NormalizeUser(u)
		b.users = append(b.users, nu)
		out = append(out, nu)
	}
	return out
}

func (b *batch) addTracks(tracks []*entity.Track) []*entity.Track {
	out := make([]*entity.Track, 0, len(tracks))
	for _, t := range tracks {
		if t == nil {
			continue
		}
		nt, rel := entity.NormalizeTrack(t)
		b.addRelated(rel)
		b.tracks = append(b.tracks, nt)
		out = append(out, nt)
	}
	return out
}

func (b *batch) addCollections(cols []*entity.Collection) []*entity.Collection {
	out := make([]*entity.Collection, 0, len(cols))
	for _, col := range cols {
		if col == nil {
			continue
		}
		nc, rel := entity.NormalizeCollection(col)
		b.addRelated(rel)
		b.collections = append(b.collections, nc)
		out = append(out, nc)
	}
	return out
}

func (b *batch) addRelated(rel entity.Related) {
	b.users = append(b.users, rel.Users...)
	b.tracks = append(b.tracks, rel.Tracks...)
}

// commit writes already-normalized entities. Stored values are private
// copies; callers keep ownership of what they passed in.
func (c *Cache) commit(ctx context.Context, mode Mode, b *batch) {
	var landed []entity.Entity

	for _, u := range b.users {
		if writeOne(c.users, mode, u.Clone()) {
			landed = append(landed, u)
		}
	}
	for _, t := range b.tracks {
		if writeOne(c.tracks, mode, t.Clone()) {
			landed = append(landed, t)
		}
	}
	for _, col := range b.collections {
		if writeOne(c.collections, mode, col.Clone()) {
			landed = append(landed, col)
		}
	}

	if len(landed) == 0 {
		return
	}
	c.logger.Debug().
		Str("mode", mode.String()).
		Int("landed", len(landed)).
		Msg("entities written")

	if c.mirror != nil {
		c.mirror.Mirror(ctx, landed...)
	}
	c.notify(mode, landed)
}

func writeOne[T Record[T]](s *Store[T], mode Mode, v T) bool {
	written := true
	if mode == ModeReplace {
		s.Replace(v)
	} else {
		written = s.PrimeIfAbsent(v)
	}
	metrics.RecordWrite(string(s.Kind()), mode.String(), written)
	return written
}

func (c *Cache) notify(mode Mode, landed []entity.Entity) {
	c.mu.RLock()
	subs := make([]Subscriber, 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	for _, e := range landed {
		ev := WriteEvent{Ref: e.EntityRef(), Mode: mode}
		for _, fn := range subs {
			fn(ev)
		}
	}
}
