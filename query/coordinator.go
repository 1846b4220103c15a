// Package query is the read path over the entity cache.
//
// A Coordinator answers reads for one entity kind. Fresh cached values are
// returned as is. Stale ones are returned immediately while a background
// refetch runs. Misses are loaded through the request batcher, with at most
// one fetch in flight per id. Per-query bookkeeping (fetch time, known
// misses, last error) lives in a cache.CacheService under keys of the form
// "query::<kind>::<id>"; the values themselves always come from the entity
// cache.
package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Status is the state of a read. Higher values win when aggregating.
type Status int

const (
	StatusDisabled Status = iota
	StatusSuccess
	StatusError
	StatusLoading
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusLoading:
		return "loading"
	default:
		return "disabled"
	}
}

func worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Result is the outcome of a single read. Found is false for disabled reads,
// failed reads and ids the remote does not know.
type Result[T any] struct {
	Data      T
	Found     bool
	Status    Status
	Stale     bool
	Err       error
	FetchedAt time.Time
}

// Presence reports whether an entity is visible to legacy consumers.
type Presence interface {
	Contains(ctx context.Context, ref entity.Ref) (bool, error)
}

// record is the stored state of one query.
type record struct {
	Status    Status
	Missing   bool
	Err       error
	FetchedAt time.Time
	ExpiresAt time.Time
}

func (r record) fresh(cfg Config, now time.Time) bool {
	return r.Status == StatusSuccess && cfg.fresh(r.FetchedAt, now)
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	keys     cache.KeySerializer
	logger   *zerolog.Logger
	now      func() time.Time
	presence Presence
}

// WithKeySerializer overrides the key serializer.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(o *options) { o.keys = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPresence gates multi-id reads on legacy store visibility.
func WithPresence(p Presence) Option {
	return func(o *options) { o.presence = p }
}

// Coordinator serves reads of one entity kind.
type Coordinator[T any] struct {
	src       Source[T]
	store     cache.CacheService
	partition func() batcher.Partition
	cfg       Config
	keys      cache.KeySerializer
	presence  Presence
	now       func() time.Time
	logger    zerolog.Logger

	flight singleflight.Group
	gens   *xsync.MapOf[entity.ID, uint64]
	epoch  atomic.Uint64
	bg     sync.WaitGroup
}

// New creates a coordinator. partition is called on every fetch so that a
// change of signed-in user takes effect immediately.
func New[T any](src Source[T], store cache.CacheService, partition func() batcher.Partition, cfg Config, opts ...Option) *Coordinator[T] {
	o := options{
		keys: cache.NewDefaultKeySerializer(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.WithComponent("query")
	if o.logger != nil {
		logger = *o.logger
	}

	return &Coordinator[T]{
		src:       src,
		store:     store,
		partition: partition,
		cfg:       cfg,
		keys:      o.keys,
		presence:  o.presence,
		now:       o.now,
		logger:    logger.With().Str("kind", string(src.Kind)).Logger(),
		gens:      xsync.NewMapOf[entity.ID, uint64](),
	}
}

// Kind returns the entity kind served.
func (c *Coordinator[T]) Kind() entity.Kind { return c.src.Kind }

// Config returns the default read policy.
func (c *Coordinator[T]) Config() Config { return c.cfg }

// Key returns the storage key of the query for id.
func (c *Coordinator[T]) Key(id entity.ID) string {
	return c.keys.SerializeKey("query", c.src.Kind, id)
}

// Get reads id with the default policy, blocking on a fetch when the value
// is not cached.
func (c *Coordinator[T]) Get(ctx context.Context, id entity.ID) Result[T] {
	return c.GetWith(ctx, id, c.cfg)
}

// GetWith reads id with a call-site policy.
func (c *Coordinator[T]) GetWith(ctx context.Context, id entity.ID, cfg Config) Result[T] {
	if res, done := c.cached(ctx, id, cfg); done {
		return res
	}

	metrics.RecordQueryRead(string(c.src.Kind), "miss")
	if err := c.fetch(ctx, id, cfg, false); err != nil {
		return Result[T]{Status: StatusError, Err: err}
	}
	v, ok := c.src.Read(id)
	return Result[T]{Data: v, Found: ok, Status: StatusSuccess, FetchedAt: c.now()}
}

// Peek reads id without blocking. A miss starts a background fetch and
// reports StatusLoading; a previous failure is reported until the record is
// invalidated or collected.
func (c *Coordinator[T]) Peek(ctx context.Context, id entity.ID) Result[T] {
	return c.PeekWith(ctx, id, c.cfg)
}

// PeekWith is Peek with a call-site policy.
func (c *Coordinator[T]) PeekWith(ctx context.Context, id entity.ID, cfg Config) Result[T] {
	if res, done := c.cached(ctx, id, cfg); done {
		return res
	}

	if rec, ok := c.lookup(ctx, id); ok && rec.Status == StatusError {
		return Result[T]{Status: StatusError, Err: rec.Err, FetchedAt: rec.FetchedAt}
	}

	metrics.RecordQueryRead(string(c.src.Kind), "miss")
	c.background(id, cfg, false)
	return Result[T]{Status: StatusLoading}
}

// cached answers every read that does not need to wait for the network.
func (c *Coordinator[T]) cached(ctx context.Context, id entity.ID, cfg Config) (Result[T], bool) {
	kind := string(c.src.Kind)
	if id == 0 || !cfg.Enabled {
		metrics.RecordQueryRead(kind, "disabled")
		return Result[T]{Status: StatusDisabled}, true
	}

	now := c.now()
	rec, hasRec := c.lookup(ctx, id)

	if v, ok := c.src.Read(id); ok {
		if hasRec && rec.fresh(cfg, now) {
			metrics.RecordQueryRead(kind, "fresh")
			c.touch(ctx, id, rec, cfg, now)
			return Result[T]{Data: v, Found: true, Status: StatusSuccess, FetchedAt: rec.FetchedAt}, true
		}
		metrics.RecordQueryRead(kind, "stale")
		c.background(id, cfg, true)
		return Result[T]{Data: v, Found: true, Status: StatusSuccess, Stale: true, FetchedAt: rec.FetchedAt}, true
	}

	if hasRec && rec.Missing && rec.fresh(cfg, now) {
		metrics.RecordQueryRead(kind, "fresh")
		c.touch(ctx, id, rec, cfg, now)
		return Result[T]{Status: StatusSuccess, FetchedAt: rec.FetchedAt}, true
	}

	var zero Result[T]
	return zero, false
}

// fetch joins or starts the single in-flight fetch for id. Cancelling ctx
// stops the wait, not the fetch.
func (c *Coordinator[T]) fetch(ctx context.Context, id entity.ID, cfg Config, revalidate bool) error {
	ch := c.flight.DoChan(c.Key(id), func() (any, error) {
		return nil, c.run(id, cfg, revalidate)
	})

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator[T]) run(id entity.ID, cfg Config, revalidate bool) error {
	kind := string(c.src.Kind)
	gen := c.generation(id)
	ctx := context.Background()

	v, found, err := c.src.Load(ctx, c.partition(), id)
	now := c.now()

	superseded := false
	c.exclusive(func() {
		if c.generation(id) != gen {
			superseded = true
			return
		}
		if err == nil && found && revalidate {
			c.src.Replace(ctx, v)
		}
	})

	if superseded {
		metrics.RecordQueryFetch(kind, "superseded")
		c.logger.Debug().
			Int64("id", int64(id)).
			Msg("fetch superseded by a mutation, result not applied")
		return err
	}

	if err != nil {
		metrics.RecordQueryFetch(kind, "error")
		c.put(ctx, id, record{Status: StatusError, Err: err, FetchedAt: now}, cfg, now)
		return err
	}

	if found {
		metrics.RecordQueryFetch(kind, "ok")
	} else {
		metrics.RecordQueryFetch(kind, "miss")
	}
	c.put(ctx, id, record{Status: StatusSuccess, Missing: !found, FetchedAt: now}, cfg, now)
	return nil
}

func (c *Coordinator[T]) exclusive(fn func()) {
	if c.src.Exclusive == nil {
		fn()
		return
	}
	c.src.Exclusive(fn)
}

func (c *Coordinator[T]) background(id entity.ID, cfg Config, revalidate bool) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if err := c.fetch(context.Background(), id, cfg, revalidate); err != nil {
			c.logger.Warn().
				Err(err).
				Int64("id", int64(id)).
				Bool("revalidate", revalidate).
				Msg("background fetch failed")
		}
	}()
}

// Wait blocks until every background fetch started so far has finished.
func (c *Coordinator[T]) Wait() {
	c.bg.Wait()
}

// Cancel supersedes any fetch of id that is in flight: its result will not
// be applied to the cache. The network call itself keeps running.
func (c *Coordinator[T]) Cancel(id entity.ID) {
	c.gens.Compute(id, func(old uint64, _ bool) (uint64, bool) {
		return old + 1, false
	})
}

// CancelAll supersedes every fetch in flight.
func (c *Coordinator[T]) CancelAll() {
	c.epoch.Add(1)
}

// generation changes whenever id or the whole kind is cancelled.
func (c *Coordinator[T]) generation(id entity.ID) uint64 {
	g, _ := c.gens.Load(id)
	return g + c.epoch.Load()
}

// Invalidate drops the query record of each id so the next read refetches.
// Cached entities are left in place and served while the refetch runs.
func (c *Coordinator[T]) Invalidate(ctx context.Context, ids ...entity.ID) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.Key(id))
	}
	return c.store.InvalidateKeys(ctx, keys)
}

// Reset drops every query record of this kind.
func (c *Coordinator[T]) Reset(ctx context.Context) error {
	return c.store.DeleteByPrefix(ctx, cache.Prefix(c.keys, "query", c.src.Kind))
}

// Observe marks the query of a written entity as freshly fetched.
func (c *Coordinator[T]) Observe(ev entitycache.WriteEvent) {
	if ev.Ref.Kind != c.src.Kind {
		return
	}
	now := c.now()
	c.put(context.Background(), ev.Ref.ID, record{Status: StatusSuccess, FetchedAt: now}, c.cfg, now)
}

// lookup loads the query record of id, dropping it once its GC window has
// passed.
func (c *Coordinator[T]) lookup(ctx context.Context, id entity.ID) (record, bool) {
	key := c.Key(id)
	rec, ok := cache.Get[record](ctx, c.store, key)
	if !ok {
		return record{}, false
	}
	if c.now().After(rec.ExpiresAt) {
		_ = c.store.Delete(ctx, key)
		return record{}, false
	}
	return rec, true
}

func (c *Coordinator[T]) touch(ctx context.Context, id entity.ID, rec record, cfg Config, now time.Time) {
	c.put(ctx, id, rec, cfg, now)
}

func (c *Coordinator[T]) put(ctx context.Context, id entity.ID, rec record, cfg Config, now time.Time) {
	rec.ExpiresAt = now.Add(cfg.GCWindow)
	if err := c.store.Set(ctx, c.Key(id), rec); err != nil {
		c.logger.Warn().Err(err).Int64("id", int64(id)).Msg("failed to store query record")
	}
}
