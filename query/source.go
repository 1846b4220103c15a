package query

import (
	"context"

	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
)

// Source binds a coordinator to one entity kind: where cached values are
// read, how a revalidated value is written back and how a miss is loaded.
//
// Exclusive, when set, runs fn under the lock mutations hold while they
// cancel fetches and write; the supersede check and the write back happen
// inside it.
type Source[T any] struct {
	Kind      entity.Kind
	Read      func(id entity.ID) (T, bool)
	Replace   func(ctx context.Context, v T)
	Load      func(ctx context.Context, p batcher.Partition, id entity.ID) (T, bool, error)
	Exclusive func(fn func())
}

// TrackSource reads tracks from cache and loads misses through reg.
func TrackSource(c *entitycache.Cache, reg *batcher.Registry[entity.ID, *entity.Track]) Source[*entity.Track] {
	return Source[*entity.Track]{
		Kind: entity.KindTrack,
		Read: c.Track,
		Replace: func(ctx context.Context, v *entity.Track) {
			c.ReplaceTracks(ctx, v)
		},
		Load: func(ctx context.Context, p batcher.Partition, id entity.ID) (*entity.Track, bool, error) {
			return reg.For(p).Load(ctx, id)
		},
		Exclusive: c.Atomically,
	}
}

// UserSource reads users from cache and loads misses through reg.
func UserSource(c *entitycache.Cache, reg *batcher.Registry[entity.ID, *entity.User]) Source[*entity.User] {
	return Source[*entity.User]{
		Kind: entity.KindUser,
		Read: c.User,
		Replace: func(ctx context.Context, v *entity.User) {
			c.ReplaceUsers(ctx, v)
		},
		Load: func(ctx context.Context, p batcher.Partition, id entity.ID) (*entity.User, bool, error) {
			return reg.For(p).Load(ctx, id)
		},
		Exclusive: c.Atomically,
	}
}

// CollectionSource reads collections from cache and loads misses through reg.
func CollectionSource(c *entitycache.Cache, reg *batcher.Registry[entity.ID, *entity.Collection]) Source[*entity.Collection] {
	return Source[*entity.Collection]{
		Kind: entity.KindCollection,
		Read: c.Collection,
		Replace: func(ctx context.Context, v *entity.Collection) {
			c.ReplaceCollections(ctx, v)
		},
		Load: func(ctx context.Context, p batcher.Partition, id entity.ID) (*entity.Collection, bool, error) {
			return reg.For(p).Load(ctx, id)
		},
		Exclusive: c.Atomically,
	}
}
