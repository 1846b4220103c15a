// Package lineup keeps paginated, ordered views over cached entities.
//
// A lineup holds refs only. Every page fetched from the remote is primed into
// the entity cache before its refs are appended, so a renderer never sees a
// ref without a backing entity. Once a key has loaded, its refs are kept in a
// cache.CacheService; switching back to that key rehydrates the lineup from
// the entity cache without going to the network. Rehydration squashes all
// pages loaded so far into one: order and total count are kept, page
// boundaries are not.
package lineup

import (
	"context"
	"sync"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/goliatone/go-entity-cache/loader"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
)

// Status is the load state of a lineup.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusLoaded
	StatusLoadingMore
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusLoadingMore:
		return "loading_more"
	default:
		return "empty"
	}
}

// Session provides the acting user.
type Session interface {
	CurrentUserID() entity.ID
}

// View is a point-in-time copy of a lineup.
type View struct {
	Name    string
	Params  map[string]string
	Status  Status
	Refs    []entity.Ref
	Pages   int
	HasMore bool
	// Rehydrated is set when the refs came from a stored snapshot.
	Rehydrated bool
	Err        error
}

// snapshot is what a loaded key leaves behind in the cache service.
type snapshot struct {
	Refs    []entity.Ref
	Next    string
	HasMore bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithKeySerializer overrides how snapshot keys are built.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(r *Reconciler) { r.keys = s }
}

// Reconciler drives one named lineup through its states.
type Reconciler struct {
	name    string
	source  remote.LineupSource
	codec   *remote.Codec
	cache   *entitycache.Cache
	store   cache.CacheService
	session Session
	cfg     Config
	keys    cache.KeySerializer
	logger  zerolog.Logger

	mu         sync.Mutex
	params     map[string]string
	status     Status
	refs       []entity.Ref
	seen       map[entity.Ref]struct{}
	next       string
	hasMore    bool
	pages      int
	rehydrated bool
	err        error
	// gen is bumped whenever the key changes or the lineup is reset; a page
	// that lands for an older generation is dropped.
	gen uint64
}

// New creates a reconciler for the lineup called name.
func New(name string, source remote.LineupSource, codec *remote.Codec, c *entitycache.Cache, store cache.CacheService, session Session, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		name:    name,
		source:  source,
		codec:   codec,
		cache:   c,
		store:   store,
		session: session,
		cfg:     cfg,
		keys:    cache.NewDefaultKeySerializer(),
		logger:  logging.WithComponent("lineup").With().Str("lineup", name).Logger(),
		seen:    make(map[entity.Ref]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the lineup name.
func (r *Reconciler) Name() string { return r.name }

// SetKey switches the lineup to params. When the new key was loaded before
// and every entity it references is still cached, the lineup is rehydrated
// synchronously and no request is made. Otherwise the first page is loaded.
func (r *Reconciler) SetKey(ctx context.Context, params map[string]string) (View, error) {
	key := r.key(params)

	r.mu.Lock()
	if r.status != StatusEmpty && r.key(r.params) == key {
		v := r.viewLocked()
		r.mu.Unlock()
		return v, nil
	}
	r.clearLocked()
	r.params = copyParams(params)

	if snap, ok := cache.Get[snapshot](ctx, r.store, key); ok && r.resident(snap.Refs) {
		for _, ref := range snap.Refs {
			r.appendLocked(ref)
		}
		r.next = snap.Next
		r.hasMore = snap.HasMore
		r.pages = 1
		r.rehydrated = true
		r.status = StatusLoaded
		v := r.viewLocked()
		r.mu.Unlock()

		metrics.RecordLineupLoad("cache")
		r.logger.Debug().Str("key", key).Int("refs", len(v.Refs)).Msg("lineup rehydrated from cache")
		return v, nil
	}
	r.mu.Unlock()

	return r.LoadMore(ctx)
}

// LoadMore fetches the next page. It is a no-op while a page is in flight or
// when the lineup has no more pages.
func (r *Reconciler) LoadMore(ctx context.Context) (View, error) {
	r.mu.Lock()
	switch {
	case r.status == StatusLoading || r.status == StatusLoadingMore:
		v := r.viewLocked()
		r.mu.Unlock()
		return v, nil
	case r.status == StatusLoaded && !r.hasMore:
		v := r.viewLocked()
		r.mu.Unlock()
		return v, nil
	}

	prev := r.status
	if prev == StatusEmpty {
		r.status = StatusLoading
	} else {
		r.status = StatusLoadingMore
	}
	gen := r.gen
	params := copyParams(r.params)
	cursor := r.next
	r.mu.Unlock()

	page, err := r.fetch(ctx, params, cursor)
	if err != nil {
		r.mu.Lock()
		if r.gen == gen {
			r.status = prev
			r.err = err
		}
		v := r.viewLocked()
		r.mu.Unlock()

		r.logger.Warn().Err(err).Str("cursor", cursor).Msg("failed to load lineup page")
		return v, err
	}

	// Prime before the refs become visible. The generation is checked first
	// so a page for a reset or superseded key leaves no trace.
	r.mu.Lock()
	if r.gen != gen {
		v := r.viewLocked()
		r.mu.Unlock()
		r.logger.Debug().Msg("dropping page for superseded lineup key")
		return v, nil
	}
	refs := loader.PrimeItems(ctx, r.cache, page.Items)
	for _, ref := range refs {
		r.appendLocked(ref)
	}
	r.next = page.Next
	r.hasMore = page.Next != ""
	r.pages++
	r.status = StatusLoaded
	r.err = nil
	snap := snapshot{Refs: append([]entity.Ref(nil), r.refs...), Next: r.next, HasMore: r.hasMore}
	key := r.key(r.params)
	if err := r.store.Set(ctx, key, snap); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to store lineup snapshot")
	}
	v := r.viewLocked()
	r.mu.Unlock()

	metrics.RecordLineupLoad("network")
	return v, nil
}

// Reset drops the lineup's refs and its stored snapshot. The next SetKey or
// LoadMore starts from the first page.
func (r *Reconciler) Reset(ctx context.Context) error {
	r.mu.Lock()
	key := r.key(r.params)
	r.clearLocked()
	r.mu.Unlock()

	if err := r.store.Delete(ctx, key); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "delete lineup snapshot").
			WithMetadata(map[string]any{"lineup": r.name, "key": key})
	}
	return nil
}

// View returns the current state.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Entries resolves the lineup's refs against the entity cache, in order.
// Refs whose entity has been evicted are skipped.
func (r *Reconciler) Entries() []entity.Entity {
	refs := r.View().Refs
	out := make([]entity.Entity, 0, len(refs))
	for _, ref := range refs {
		e, ok := r.cache.Get(ref)
		if !ok {
			continue
		}
		if r.cfg.RemoveDeleted && r.hidden(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *Reconciler) hidden(e entity.Entity) bool {
	switch v := e.(type) {
	case *entity.Track:
		return v.MarkedDeleted || v.IsDelete || r.ownerDeactivated(v.OwnerID)
	case *entity.Collection:
		return v.MarkedDeleted || v.IsDelete || r.ownerDeactivated(v.PlaylistOwnerID)
	case *entity.User:
		return v.IsDeactivated
	default:
		return false
	}
}

func (r *Reconciler) ownerDeactivated(id entity.ID) bool {
	u, ok := r.cache.User(id)
	return ok && u.IsDeactivated
}

func (r *Reconciler) fetch(ctx context.Context, params map[string]string, cursor string) (remote.Page, error) {
	user, err := loader.EncodeUser(r.codec, int64(r.session.CurrentUserID()))
	if err != nil {
		return remote.Page{}, err
	}
	page, err := r.source.FetchPage(ctx, remote.PageRequest{
		Lineup:        r.name,
		Params:        params,
		Cursor:        cursor,
		Limit:         r.cfg.PageSize,
		CurrentUserID: user,
	})
	if err != nil {
		return remote.Page{}, errors.Wrap(err, errors.CategoryExternal, "fetch lineup page").
			WithMetadata(map[string]any{"lineup": r.name, "cursor": cursor})
	}
	return page, nil
}

func (r *Reconciler) resident(refs []entity.Ref) bool {
	for _, ref := range refs {
		if !r.cache.Has(ref) {
			return false
		}
	}
	return true
}

func (r *Reconciler) key(params map[string]string) string {
	if len(params) == 0 {
		return r.keys.SerializeKey("lineup", r.name)
	}
	return r.keys.SerializeKey("lineup", r.name, params)
}

// appendLocked adds ref unless the lineup already holds it. Offset-paged
// feeds can repeat an item when the feed shifts between pages.
func (r *Reconciler) appendLocked(ref entity.Ref) {
	if _, ok := r.seen[ref]; ok {
		return
	}
	r.seen[ref] = struct{}{}
	r.refs = append(r.refs, ref)
}

func (r *Reconciler) clearLocked() {
	r.gen++
	r.status = StatusEmpty
	r.refs = nil
	r.seen = make(map[entity.Ref]struct{})
	r.next = ""
	r.hasMore = false
	r.pages = 0
	r.rehydrated = false
	r.err = nil
}

func (r *Reconciler) viewLocked() View {
	return View{
		Name:       r.name,
		Params:     copyParams(r.params),
		Status:     r.status,
		Refs:       append([]entity.Ref(nil), r.refs...),
		Pages:      r.pages,
		HasMore:    r.hasMore,
		Rehydrated: r.rehydrated,
		Err:        r.err,
	}
}

func copyParams(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
