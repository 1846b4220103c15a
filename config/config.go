// Package config assembles the configuration of every component and loads it
// from defaults, an optional YAML file and the environment.
package config

import (
	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/legacy"
	"github.com/goliatone/go-entity-cache/lineup"
	"github.com/goliatone/go-entity-cache/query"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
)

// Config is the full configuration.
type Config struct {
	Logging logging.Config `koanf:"logging"`
	Cache   cache.Config   `koanf:"cache"`
	Batcher batcher.Config `koanf:"batcher"`
	Queries QueriesConfig  `koanf:"queries"`
	Lineup  lineup.Config  `koanf:"lineup"`
	Legacy  legacy.Config  `koanf:"legacy"`
	Remote  RemoteConfig   `koanf:"remote"`
}

// QueriesConfig holds the read policy of entity queries and of the
// signed-in account.
type QueriesConfig struct {
	Entities query.Config `koanf:"entities"`
	Account  query.Config `koanf:"account"`
}

// RemoteConfig describes the remote source boundary.
type RemoteConfig struct {
	// SourceID partitions batchers; switching sources never mixes batches.
	SourceID       string               `koanf:"source_id"`
	Codec          remote.CodecConfig   `koanf:"codec"`
	BreakerEnabled bool                 `koanf:"breaker_enabled"`
	Breaker        remote.BreakerConfig `koanf:"breaker"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Logging: logging.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
		Batcher: batcher.DefaultConfig(),
		Queries: QueriesConfig{
			Entities: query.DefaultConfig(),
			Account:  query.AccountConfig(),
		},
		Lineup: lineup.DefaultConfig(),
		Legacy: legacy.DefaultConfig(),
		Remote: RemoteConfig{
			SourceID:       "default",
			Codec:          remote.DefaultCodecConfig(),
			BreakerEnabled: true,
			Breaker:        remote.DefaultBreakerConfig(),
		},
	}
}

// Validate checks every section and reports all failures together.
func (c Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, errors.Wrap(err, errors.CategoryValidation, "invalid "+section+" config").
				WithMetadata(map[string]any{"section": section}))
		}
	}

	check("cache", c.Cache.Validate())
	check("batcher", c.Batcher.Validate())
	check("queries.entities", c.Queries.Entities.Validate())
	check("queries.account", c.Queries.Account.Validate())
	check("lineup", c.Lineup.Validate())
	check("legacy", c.Legacy.Validate())
	check("remote.codec", c.Remote.Codec.Validate())
	if c.Remote.SourceID == "" {
		errs = append(errs, errors.New("remote source id is required", errors.CategoryValidation).
			WithMetadata(map[string]any{"section": "remote"}))
	}

	return errors.Join(errs...)
}
