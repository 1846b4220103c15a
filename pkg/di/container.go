package di

import (
	"context"
	"sync"

	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/config"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/legacy"
	"github.com/goliatone/go-entity-cache/lineup"
	"github.com/goliatone/go-entity-cache/loader"
	"github.com/goliatone/go-entity-cache/mutation"
	"github.com/goliatone/go-entity-cache/query"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-entity-cache/session"
	"github.com/goliatone/go-errors"
)

// Option customizes a Container.
type Option func(*options)

type options struct {
	reporter mutation.Reporter
}

// WithReporter sets where failed mutations are reported.
func WithReporter(r mutation.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// Container wires the entity cache and everything built on it for one
// client session. Components are created once and shared.
type Container struct {
	config        config.Config
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	session       *session.Session
	codec         *remote.Codec
	source        remote.Source
	legacy        legacy.Store
	closeLegacy   func() error
	bridge        *legacy.Bridge
	entities      *entitycache.Cache
	loader        *loader.Loader
	registries    query.Registries
	queries       *query.Client
	mutations     *mutation.Coordinator

	mu      sync.Mutex
	lineups map[string]*lineup.Reconciler
}

// NewContainer validates cfg and builds every component on top of source.
// When the breaker is enabled, all remote calls go through it.
func NewContainer(ctx context.Context, cfg config.Config, source remote.Source, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logging.Init(cfg.Logging)

	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, err
	}
	codec, err := remote.NewCodec(cfg.Remote.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.Remote.BreakerEnabled {
		source = remote.NewBreaker(source, cfg.Remote.Breaker)
	}

	store, closeLegacy, err := legacy.Open(ctx, cfg.Legacy)
	if err != nil {
		return nil, err
	}
	bridge := legacy.NewBridge(store, legacy.WithWriteTimeout(cfg.Legacy.WriteTimeout))
	entities := entitycache.New(entitycache.WithMirror(bridge))

	c := &Container{
		config:        cfg,
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
		session:       session.New(source.ID()),
		codec:         codec,
		source:        source,
		legacy:        store,
		closeLegacy:   closeLegacy,
		bridge:        bridge,
		entities:      entities,
		lineups:       make(map[string]*lineup.Reconciler),
	}
	c.loader = loader.New(source, codec, entities, loader.WithCurrentPartition(c.session.Partition))

	c.registries = query.Registries{
		Tracks:      batcher.NewRegistry[entity.ID, *entity.Track]("track", cfg.Batcher, c.loader.Tracks),
		Users:       batcher.NewRegistry[entity.ID, *entity.User]("user", cfg.Batcher, c.loader.Users),
		Collections: batcher.NewRegistry[entity.ID, *entity.Collection]("collection", cfg.Batcher, c.loader.Collections),
	}

	c.queries = query.NewClient(entities, c.registries, cacheService, c.session.Partition, cfg.Queries.Entities,
		query.WithKeySerializer(c.keySerializer),
		query.WithPresence(bridge),
	)
	c.queries.SetAccountConfig(cfg.Queries.Account)

	mopts := []mutation.Option{mutation.WithQueries(c.queries)}
	if o.reporter != nil {
		mopts = append(mopts, mutation.WithReporter(o.reporter))
	}
	c.mutations = mutation.New(entities, source, codec, c.session, mopts...)

	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default.
func NewContainerWithDefaults(ctx context.Context, source remote.Source, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), source, opts...)
}

// Config returns the configuration the container was built with.
func (c *Container) Config() config.Config { return c.config }

// CacheService returns the store holding query records and lineup snapshots.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// KeySerializer returns the key serializer shared by queries and lineups.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

func (c *Container) Session() *session.Session        { return c.session }
func (c *Container) Codec() *remote.Codec             { return c.codec }
func (c *Container) Source() remote.Source            { return c.source }
func (c *Container) Entities() *entitycache.Cache     { return c.entities }
func (c *Container) Legacy() legacy.Store             { return c.legacy }
func (c *Container) Queries() *query.Client           { return c.queries }
func (c *Container) Mutations() *mutation.Coordinator { return c.mutations }
func (c *Container) Registries() query.Registries     { return c.registries }
func (c *Container) Loader() *loader.Loader           { return c.loader }

// Lineup returns the reconciler of the named lineup, creating it on first
// use.
func (c *Container) Lineup(name string) *lineup.Reconciler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.lineups[name]; ok {
		return r
	}
	r := lineup.New(name, c.source, c.codec, c.entities, c.cacheService, c.session, c.config.Lineup,
		lineup.WithKeySerializer(c.keySerializer))
	c.lineups[name] = r
	return r
}

// SignIn switches the acting user. Pending mutations of the previous user
// settle first. Cached entities carry per-user flags, so they are dropped
// together with query records and lineups.
func (c *Container) SignIn(ctx context.Context, id entity.ID) error {
	if c.session.CurrentUserID() == id {
		return nil
	}
	c.mutations.Wait()
	c.session.SignIn(id)
	return c.resetUserState(ctx)
}

// SignOut clears the acting user.
func (c *Container) SignOut(ctx context.Context) error {
	if c.session.CurrentUserID() == 0 {
		return nil
	}
	c.mutations.Wait()
	c.session.SignOut()
	return c.resetUserState(ctx)
}

// resetUserState drops everything computed for the previous user. Lineups
// go first so a page still in flight is dropped instead of primed.
func (c *Container) resetUserState(ctx context.Context) error {
	var errs []error

	c.mu.Lock()
	lineups := make([]*lineup.Reconciler, 0, len(c.lineups))
	for _, r := range c.lineups {
		lineups = append(lineups, r)
	}
	c.mu.Unlock()

	for _, r := range lineups {
		if err := r.Reset(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.queries.CancelAll()
	c.entities.Reset()
	if err := c.queries.ResetAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close waits for pending mutations and background fetches, stops the
// batchers and releases the legacy store.
func (c *Container) Close() error {
	c.mutations.Wait()
	c.queries.Close()
	c.registries.Tracks.Close()
	c.registries.Users.Close()
	c.registries.Collections.Close()
	return c.closeLegacy()
}
