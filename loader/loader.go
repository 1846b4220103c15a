// Package loader turns remote bulk responses into cached entities. Its fetch
// functions plug into batcher registries: every response is decoded,
// normalized and primed into the entity cache before any waiting caller is
// resolved.
package loader

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
)

// Option configures a Loader.
type Option func(*Loader)

// WithCurrentPartition makes the loader skip priming responses fetched for a
// partition other than current(). They are still returned to waiters.
func WithCurrentPartition(current func() batcher.Partition) Option {
	return func(l *Loader) { l.current = current }
}

// Loader fetches entities in bulk and primes them.
type Loader struct {
	source  remote.Fetcher
	codec   *remote.Codec
	cache   *entitycache.Cache
	current func() batcher.Partition
	logger  zerolog.Logger
}

// New creates a loader.
func New(source remote.Fetcher, codec *remote.Codec, cache *entitycache.Cache, opts ...Option) *Loader {
	l := &Loader{
		source: source,
		codec:  codec,
		cache:  cache,
		logger: logging.WithComponent("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// stale reports whether p stopped being the acting partition while its
// fetch was in flight.
func (l *Loader) stale(p batcher.Partition) bool {
	if l.current == nil || l.current() == p {
		return false
	}
	l.logger.Debug().
		Int64("user_id", p.UserID).
		Msg("acting user changed during fetch, response not primed")
	return true
}

// Tracks returns the track fetch function for a partition.
func (l *Loader) Tracks(p batcher.Partition) batcher.FetchFunc[entity.ID, *entity.Track] {
	return func(ctx context.Context, ids []entity.ID) (map[entity.ID]*entity.Track, error) {
		raws, err := l.bulk(ctx, entity.KindTrack, p, ids)
		if err != nil {
			return nil, err
		}
		tracks := decodeAll[entity.Track](l.logger, entity.KindTrack, raws)
		out := make(map[entity.ID]*entity.Track, len(tracks))
		if l.stale(p) {
			for _, t := range tracks {
				out[t.TrackID] = t
			}
			return out, nil
		}
		for _, t := range l.cache.PrimeTracks(ctx, tracks...) {
			out[t.TrackID] = t
		}
		return out, nil
	}
}

// Users returns the user fetch function for a partition.
func (l *Loader) Users(p batcher.Partition) batcher.FetchFunc[entity.ID, *entity.User] {
	return func(ctx context.Context, ids []entity.ID) (map[entity.ID]*entity.User, error) {
		raws, err := l.bulk(ctx, entity.KindUser, p, ids)
		if err != nil {
			return nil, err
		}
		users := decodeAll[entity.User](l.logger, entity.KindUser, raws)
		out := make(map[entity.ID]*entity.User, len(users))
		if l.stale(p) {
			for _, u := range users {
				out[u.UserID] = u
			}
			return out, nil
		}
		for _, u := range l.cache.PrimeUsers(ctx, users...) {
			out[u.UserID] = u
		}
		return out, nil
	}
}

// Collections returns the collection fetch function for a partition.
func (l *Loader) Collections(p batcher.Partition) batcher.FetchFunc[entity.ID, *entity.Collection] {
	return func(ctx context.Context, ids []entity.ID) (map[entity.ID]*entity.Collection, error) {
		raws, err := l.bulk(ctx, entity.KindCollection, p, ids)
		if err != nil {
			return nil, err
		}
		cols := decodeAll[entity.Collection](l.logger, entity.KindCollection, raws)
		out := make(map[entity.ID]*entity.Collection, len(cols))
		if l.stale(p) {
			for _, c := range cols {
				out[c.PlaylistID] = c
			}
			return out, nil
		}
		for _, c := range l.cache.PrimeCollections(ctx, cols...) {
			out[c.PlaylistID] = c
		}
		return out, nil
	}
}

func (l *Loader) bulk(ctx context.Context, kind entity.Kind, p batcher.Partition, ids []entity.ID) ([]json.RawMessage, error) {
	encoded, err := l.codec.EncodeAll(ids)
	if err != nil {
		return nil, err
	}
	userID, err := EncodeUser(l.codec, p.UserID)
	if err != nil {
		return nil, err
	}

	raws, err := l.source.BulkFetch(ctx, remote.BulkRequest{
		Kind:          kind,
		IDs:           encoded,
		CurrentUserID: userID,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "bulk fetch").
			WithMetadata(map[string]any{"kind": string(kind), "count": len(ids)})
	}
	return raws, nil
}

// EncodeUser encodes the acting user id; zero means anonymous.
func EncodeUser(codec *remote.Codec, userID int64) (string, error) {
	if userID == 0 {
		return "", nil
	}
	return codec.Encode(entity.ID(userID))
}

// Malformed payloads are dropped and show up as misses.
func decodeAll[T any](logger zerolog.Logger, kind entity.Kind, raws []json.RawMessage) []*T {
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			logger.Warn().Err(err).Str("kind", string(kind)).Msg("dropping malformed payload")
			continue
		}
		out = append(out, v)
	}
	return out
}

// PrimeItems decodes lineup page items, primes them and returns their refs in
// page order. Malformed or unknown items are skipped.
func PrimeItems(ctx context.Context, cache *entitycache.Cache, items []remote.PageItem) []entity.Ref {
	var (
		tracks []*entity.Track
		users  []*entity.User
		cols   []*entity.Collection
		refs   = make([]entity.Ref, 0, len(items))
	)
	logger := logging.WithComponent("loader")

	for _, item := range items {
		switch item.Kind {
		case entity.KindTrack:
			var t entity.Track
			if err := json.Unmarshal(item.Payload, &t); err != nil {
				logger.Warn().Err(err).Msg("dropping malformed track")
				continue
			}
			tracks = append(tracks, &t)
			refs = append(refs, entity.TrackRef(t.TrackID))
		case entity.KindUser:
			var u entity.User
			if err := json.Unmarshal(item.Payload, &u); err != nil {
				logger.Warn().Err(err).Msg("dropping malformed user")
				continue
			}
			users = append(users, &u)
			refs = append(refs, entity.UserRef(u.UserID))
		case entity.KindCollection:
			var c entity.Collection
			if err := json.Unmarshal(item.Payload, &c); err != nil {
				logger.Warn().Err(err).Msg("dropping malformed collection")
				continue
			}
			cols = append(cols, &c)
			refs = append(refs, entity.CollectionRef(c.PlaylistID))
		default:
			logger.Warn().Str("kind", string(item.Kind)).Msg("skipping lineup item of unknown kind")
		}
	}

	cache.PrimeUsers(ctx, users...)
	cache.PrimeTracks(ctx, tracks...)
	cache.PrimeCollections(ctx, cols...)
	return refs
}
