// Package cache holds the keyed record store used next to the entity cache.
//
// # Overview
//
// Entities themselves live in the entitycache package. This package stores
// everything that is keyed by a request rather than by an entity id:
//
//   - query records: status, error, fetch time and GC deadline per query key
//   - lineup snapshots: the ordered refs and cursor of a loaded lineup
//
// Two interfaces are exported:
//
//   - CacheService: keyed Get/Set storage with prefix deletes
//   - KeySerializer: builds stable keys from a tag and arguments
//
// # Basic Usage
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("track", entity.ID(42))
//	// "track::42"
//
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	_ = svc.Set(ctx, key, record)
//	rec, ok := cache.Get[queryRecord](ctx, svc, key)
//
// # Key Serialization Strategy
//
// The default key serializer uses reflection to handle various Go types:
//
//   - fmt.Stringer values (entity.ID, entity.Ref): their String form
//   - Basic types: Direct string representation
//   - Slices/arrays: Recursive serialization of elements
//   - Maps: Sorted key-value pairs, so equal lineup params give equal keys
//   - Structs: Exported fields with name:value pairs
//   - Complex types: JSON fallback
//
// Function and channel values are keyed by pointer and are only stable within
// one process.
//
// # Resetting families of keys
//
// Prefix returns the shared prefix of all keys that start with a tag and some
// leading args. Pass it to DeleteByPrefix to drop every query of a kind or
// every page of a lineup:
//
//	_ = svc.DeleteByPrefix(ctx, cache.Prefix(serializer, "lineup", "feed"))
package cache
