package cache

import (
	"time"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// Config exposes the query-state store options. TTL bounds how long an
// unused query record survives; it should be at least the longest GC window
// of any query.
type Config struct {
	Capacity           int           `koanf:"capacity"`
	NumShards          int           `koanf:"num_shards"`
	TTL                time.Duration `koanf:"ttl"`
	EvictionPercentage int           `koanf:"eviction_percentage"`
	EvictionInterval   time.Duration `koanf:"eviction_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	d := cacheinfra.DefaultConfig()
	return Config{
		Capacity:           d.Capacity,
		NumShards:          d.NumShards,
		TTL:                d.TTL,
		EvictionPercentage: d.EvictionPercentage,
		EvictionInterval:   d.EvictionInterval,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService constructs the sturdyc-backed store.
func NewCacheService(cfg Config) (CacheService, error) {
	store, err := cacheinfra.NewStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}
