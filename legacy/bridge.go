package legacy

import (
	"context"
	"time"

	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/rs/zerolog"
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l zerolog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithWriteTimeout bounds each mirrored write. Zero means no bound.
func WithWriteTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.timeout = d }
}

// Bridge mirrors entity cache writes into a Store. Mirroring is best effort:
// a failed write is logged and counted, never returned, and the entity cache
// write it follows stands.
type Bridge struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
}

var _ entitycache.Mirror = (*Bridge)(nil)

// NewBridge wraps store.
func NewBridge(store Store, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:  store,
		logger: logging.WithComponent("legacy"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mirror writes entities to the legacy store.
func (b *Bridge) Mirror(ctx context.Context, entities ...entity.Entity) {
	if len(entities) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	err := b.store.Write(ctx, entities...)
	metrics.RecordLegacyWrite(err)
	if err != nil {
		b.logger.Warn().
			Err(err).
			Int("entities", len(entities)).
			Str("first", entities[0].EntityRef().String()).
			Msg("failed to mirror entities to legacy store")
	}
}

// Contains reports whether ref is visible in the legacy store.
func (b *Bridge) Contains(ctx context.Context, ref entity.Ref) (bool, error) {
	return b.store.Contains(ctx, ref)
}
