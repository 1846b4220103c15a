package cache

import "context"

// KeySerializer builds a cache key from a kind tag + arbitrary args.
// It is responsible for producing stable keys across calls, so that
// ["track", 42] and ["lineup", "feed", params] always map to the same string.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// CacheService is the storage boundary used for query state and lineup
// snapshots. Values are plain records; keys come from a KeySerializer.
type CacheService interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
}

// Get is the typed counterpart of CacheService.Get. A value of the wrong
// type is reported as a miss.
func Get[T any](ctx context.Context, service CacheService, key string) (T, bool) {
	var zero T
	result, ok := service.Get(ctx, key)
	if !ok || result == nil {
		return zero, false
	}
	v, ok := result.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
