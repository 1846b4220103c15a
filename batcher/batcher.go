// Package batcher coalesces individual fetch-by-id calls into bulk fetches.
//
// All Load calls made within one debounce window are served by a single call
// to the fetch function with the deduplicated key set. Keys absent from the
// fetch result resolve as misses; a failed fetch fails every caller of that
// batch with the same error.
package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("batcher closed", errors.CategoryOperation)

// FetchFunc fetches the values of keys in one call. Keys missing from the
// returned map are treated as not found.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Option configures a Batcher.
type Option func(*options)

type options struct {
	logger *zerolog.Logger
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// Batcher collects keys over a debounce window and fetches them together.
type Batcher[K comparable, V any] struct {
	name   string
	fetch  FetchFunc[K, V]
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	pending *batch[K, V]
	closed  bool
}

type batch[K comparable, V any] struct {
	keys    []K
	seen    map[K]struct{}
	timer   *time.Timer
	done    chan struct{}
	results map[K]V
	err     error
}

// New creates a batcher. name labels logs and metrics, usually the entity
// kind.
func New[K comparable, V any](name string, fetch FetchFunc[K, V], cfg Config, opts ...Option) *Batcher[K, V] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.WithComponent("batcher")
	if o.logger != nil {
		logger = *o.logger
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultConfig().Wait
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Batcher[K, V]{
		name:   name,
		fetch:  fetch,
		cfg:    cfg,
		logger: logger.With().Str("batcher", name).Logger(),
	}
}

// Load queues key for the current window and waits for its batch. found is
// false when the bulk result did not contain key. Cancelling ctx stops the
// wait but not the batch.
func (b *Batcher[K, V]) Load(ctx context.Context, key K) (value V, found bool, err error) {
	bt, err := b.enqueue(key)
	if err != nil {
		return value, false, err
	}

	select {
	case <-bt.done:
	case <-ctx.Done():
		return value, false, ctx.Err()
	}

	if bt.err != nil {
		return value, false, bt.err
	}
	value, found = bt.results[key]
	return value, found, nil
}

func (b *Batcher[K, V]) enqueue(key K) (*batch[K, V], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	bt := b.pending
	if bt == nil {
		bt = &batch[K, V]{
			seen: make(map[K]struct{}),
			done: make(chan struct{}),
		}
		b.pending = bt
		bt.timer = time.AfterFunc(b.cfg.Wait, func() { b.flush(bt) })
	}

	if _, dup := bt.seen[key]; !dup {
		bt.seen[key] = struct{}{}
		bt.keys = append(bt.keys, key)
	}

	if b.cfg.MaxBatch > 0 && len(bt.keys) >= b.cfg.MaxBatch {
		b.pending = nil
		bt.timer.Stop()
		go b.run(bt)
	}

	return bt, nil
}

// flush dispatches bt if it is still the pending batch.
func (b *Batcher[K, V]) flush(bt *batch[K, V]) {
	b.mu.Lock()
	if b.pending != bt {
		b.mu.Unlock()
		return
	}
	b.pending = nil
	b.mu.Unlock()

	b.run(bt)
}

func (b *Batcher[K, V]) run(bt *batch[K, V]) {
	defer close(bt.done)

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	results, err := b.safeFetch(ctx, bt.keys)
	elapsed := time.Since(start)
	metrics.RecordBatch(b.name, len(bt.keys), elapsed, err)

	if err != nil {
		bt.err = err
		b.logger.Warn().Err(err).Int("size", len(bt.keys)).Msg("bulk fetch failed")
		return
	}
	bt.results = results
	b.logger.Debug().
		Int("size", len(bt.keys)).
		Int("found", len(results)).
		Dur("elapsed", elapsed).
		Msg("batch flushed")
}

func (b *Batcher[K, V]) safeFetch(ctx context.Context, keys []K) (results map[K]V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprintf("bulk fetch panicked: %v", r), errors.CategoryInternal)
		}
	}()
	return b.fetch(ctx, keys)
}

// Flush dispatches the pending batch without waiting for the window.
func (b *Batcher[K, V]) Flush() {
	b.mu.Lock()
	bt := b.pending
	b.mu.Unlock()
	if bt == nil {
		return
	}
	if bt.timer.Stop() {
		b.flush(bt)
	}
}

// FlushAsync dispatches the pending batch, if any, without waiting for its
// bulk fetch.
func (b *Batcher[K, V]) FlushAsync() {
	b.mu.Lock()
	bt := b.pending
	b.mu.Unlock()
	if bt == nil {
		return
	}
	if bt.timer.Stop() {
		go b.flush(bt)
	}
}

// Close flushes the pending batch and rejects further loads.
func (b *Batcher[K, V]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Flush()
}
