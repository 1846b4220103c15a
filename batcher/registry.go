package batcher

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

// Partition scopes a batcher to one remote source and one acting user so
// that requests made on behalf of different users never share a bulk fetch.
type Partition struct {
	SourceID string
	UserID   int64
}

// Hash returns the memoization key of p.
func (p Partition) Hash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(p.SourceID)
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[1:], uint64(p.UserID))
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// Factory builds the fetch function for a partition.
type Factory[K comparable, V any] func(p Partition) FetchFunc[K, V]

type entry[K comparable, V any] struct {
	partition Partition
	batcher   *Batcher[K, V]
}

// Registry memoizes one Batcher per Partition. Batchers idle for longer than
// Config.PartitionTTL are dropped.
type Registry[K comparable, V any] struct {
	name    string
	cfg     Config
	factory Factory[K, V]
	logger  zerolog.Logger
	items   *ttlcache.Cache[uint64, *entry[K, V]]
}

// NewRegistry creates a registry and starts its expiry loop.
func NewRegistry[K comparable, V any](name string, cfg Config, factory Factory[K, V], opts ...Option) *Registry[K, V] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.WithComponent("batcher")
	if o.logger != nil {
		logger = *o.logger
	}
	ttl := cfg.PartitionTTL
	if ttl <= 0 {
		ttl = DefaultConfig().PartitionTTL
	}

	items := ttlcache.New[uint64, *entry[K, V]](
		ttlcache.WithTTL[uint64, *entry[K, V]](ttl),
	)
	items.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[uint64, *entry[K, V]]) {
		item.Value().batcher.FlushAsync()
	})
	go items.Start()

	return &Registry[K, V]{
		name:    name,
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		items:   items,
	}
}

// For returns the batcher of p, creating it on first use.
func (r *Registry[K, V]) For(p Partition) *Batcher[K, V] {
	item, _ := r.items.GetOrSetFunc(p.Hash(), func() *entry[K, V] {
		return &entry[K, V]{partition: p, batcher: r.newBatcher(p)}
	})
	e := item.Value()
	if e.partition != p {
		r.logger.Warn().
			Str("source", p.SourceID).
			Int64("user", p.UserID).
			Msg("partition hash collision, using an unshared batcher")
		return r.newBatcher(p)
	}
	return e.batcher
}

func (r *Registry[K, V]) newBatcher(p Partition) *Batcher[K, V] {
	return New(r.name, r.factory(p), r.cfg, WithLogger(r.logger))
}

// Len returns the number of live partitions.
func (r *Registry[K, V]) Len() int {
	return r.items.Len()
}

// Close stops the expiry loop and closes every batcher.
func (r *Registry[K, V]) Close() {
	r.items.Range(func(item *ttlcache.Item[uint64, *entry[K, V]]) bool {
		item.Value().batcher.Close()
		return true
	})
	r.items.Stop()
}
