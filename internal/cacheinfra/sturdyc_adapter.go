package cacheinfra

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
)

// Config sizes the sturdyc client that holds query records and lineup
// snapshots.
type Config struct {
	// Capacity is the maximum number of stored records.
	Capacity int

	// NumShards splits the keyspace to reduce lock contention.
	NumShards int

	// TTL bounds how long a record survives after its last write.
	TTL time.Duration

	// EvictionPercentage is the share of a full shard dropped to make room.
	EvictionPercentage int

	// EvictionInterval is how often expired records are swept. Zero keeps
	// the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config sized for one client session.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                30 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
			validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
			validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
			validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
			validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		)
	}, "invalid cache config"); err != nil {
		return err
	}
	return nil
}

func (c Config) options() []sturdyc.Option {
	var opts []sturdyc.Option
	if c.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return opts
}

// Store is a key/value store backed by a sturdyc client. Values are plain
// records; the caller owns their types.
type Store struct {
	client *sturdyc.Client[any]
}

// NewStore validates cfg and creates the sturdyc client.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)
	return &Store{client: client}, nil
}

func (s *Store) Get(ctx context.Context, key string) (any, bool) {
	return s.client.Get(key)
}

// Set writes value under key. It lives for the configured TTL.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return errors.New("empty cache key", errors.CategoryBadInput)
	}
	s.client.Set(key, value)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every record whose key starts with prefix, e.g.
// all query records of one entity kind.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.Keys(prefix) {
		s.client.Delete(key)
	}
	return nil
}

// InvalidateKeys removes the given records.
func (s *Store) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Keys lists the stored keys starting with prefix. An empty prefix lists
// every key.
func (s *Store) Keys(prefix string) []string {
	all := s.client.ScanKeys()
	out := all[:0]
	for _, key := range all {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out
}

// Size returns the number of stored records.
func (s *Store) Size() int {
	return s.client.Size()
}
