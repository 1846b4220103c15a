// Package mutation applies writes optimistically.
//
// Every mutation runs the same protocol. In Start, synchronously: in-flight
// refetches of each affected entity are cancelled, its cached state is
// captured and the speculative change is force-written into the entity
// cache. The network call then runs in the background. When it fails, every
// captured entity is restored and the failure is reported; when it succeeds,
// the server's answer may be reconciled into the cache.
//
// Validation failures (no signed-in user, acting on one's own entity,
// repeating an action) are returned by Start before any network call, with
// the cache left untouched.
package mutation

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/goliatone/go-entity-cache/remote"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Queries is the part of the read path a mutation needs: superseding
// in-flight fetches and dropping query records after commit.
type Queries interface {
	Cancel(ref entity.Ref)
	Invalidate(ctx context.Context, ref entity.Ref) error
}

// Session provides the acting user.
type Session interface {
	CurrentUserID() entity.ID
}

// Mutation describes one optimistic write.
type Mutation struct {
	// Feature tags error reports.
	Feature string
	Type    remote.ActionType
	Target  entity.Ref
	Payload json.RawMessage

	// Apply validates and writes the speculative state through tx.
	Apply func(tx *Tx) error

	// Reconcile, when set, is called with the server's payload after a
	// successful network call.
	Reconcile func(tx *Tx, resp json.RawMessage) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithQueries lets mutations cancel and invalidate queries.
func WithQueries(q Queries) Option {
	return func(c *Coordinator) { c.queries = q }
}

// WithReporter sets the failure reporter.
func WithReporter(r Reporter) Option {
	return func(c *Coordinator) { c.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithIDGenerator overrides the mutation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// Coordinator runs mutations against the entity cache and the remote writer.
type Coordinator struct {
	cache    *entitycache.Cache
	writer   remote.Writer
	codec    *remote.Codec
	session  Session
	queries  Queries
	reporter Reporter
	logger   zerolog.Logger
	newID    func() string

	wg sync.WaitGroup
}

// New creates a coordinator.
func New(cache *entitycache.Cache, writer remote.Writer, codec *remote.Codec, session Session, opts ...Option) *Coordinator {
	logger := logging.WithComponent("mutation")
	c := &Coordinator{
		cache:    cache,
		writer:   writer,
		codec:    codec,
		session:  session,
		logger:   logger,
		reporter: LogReporter{Logger: logger},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending is a mutation whose network phase is running.
type Pending struct {
	ID      string
	Feature string
	Touched []entity.Ref

	done chan struct{}
	err  error
}

// Done is closed once the mutation committed or rolled back.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the transport error after Done is closed.
func (p *Pending) Err() error {
	<-p.done
	return p.err
}

// Wait blocks until the mutation settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts m and waits for it to settle.
func (c *Coordinator) Run(ctx context.Context, m Mutation) error {
	p, err := c.Start(ctx, m)
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

// Start applies m to the cache and launches its network call. The returned
// error is a validation or encoding failure; the cache is unchanged when it
// is non-nil.
func (c *Coordinator) Start(ctx context.Context, m Mutation) (*Pending, error) {
	userID := c.session.CurrentUserID()
	tx := newTx(context.WithoutCancel(ctx), c.cache, c.queries, userID)

	var (
		action remote.Action
		err    error
	)
	c.cache.Atomically(func() {
		if action, err = c.apply(m, tx, userID); err != nil {
			c.abort(ctx, m, tx, err)
		}
	})
	if err != nil {
		return nil, err
	}

	return c.launch(ctx, m, tx, action), nil
}

func (c *Coordinator) apply(m Mutation, tx *Tx, userID entity.ID) (remote.Action, error) {
	if err := m.Apply(tx); err != nil {
		return remote.Action{}, err
	}
	return c.action(m, userID)
}

func (c *Coordinator) launch(ctx context.Context, m Mutation, tx *Tx, action remote.Action) *Pending {
	p := &Pending{
		ID:      c.newID(),
		Feature: m.Feature,
		Touched: tx.Touched(),
		done:    make(chan struct{}),
	}

	c.logger.Debug().
		Str("mutation_id", p.ID).
		Str("feature", m.Feature).
		Str("target", m.Target.String()).
		Int("touched", len(p.Touched)).
		Msg("optimistic update applied")

	c.wg.Add(1)
	go c.commit(context.WithoutCancel(ctx), m, tx, action, p)
	return p
}

// Wait blocks until every started mutation has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) action(m Mutation, userID entity.ID) (remote.Action, error) {
	id, err := c.codec.Encode(m.Target.ID)
	if err != nil {
		return remote.Action{}, err
	}
	var user string
	if userID != 0 {
		if user, err = c.codec.Encode(userID); err != nil {
			return remote.Action{}, err
		}
	}
	return remote.Action{
		Type:          m.Type,
		Kind:          m.Target.Kind,
		ID:            id,
		CurrentUserID: user,
		Payload:       m.Payload,
	}, nil
}

func (c *Coordinator) abort(ctx context.Context, m Mutation, tx *Tx, cause error) {
	metrics.RecordMutation(m.Feature, "rejected")
	if err := tx.rollback(ctx); err != nil {
		c.logger.Error().Err(err).Str("feature", m.Feature).Msg("failed to restore cache after rejected mutation")
	}
	c.logger.Debug().Err(cause).Str("feature", m.Feature).Msg("mutation rejected")
}

func (c *Coordinator) commit(ctx context.Context, m Mutation, tx *Tx, action remote.Action, p *Pending) {
	defer c.wg.Done()
	defer close(p.done)

	resp, err := c.writer.Mutate(ctx, action)
	if err != nil {
		p.err = err
		c.rollback(ctx, m, tx, p, err)
		return
	}

	if m.Reconcile != nil && len(resp) > 0 {
		var rerr error
		c.cache.Atomically(func() { rerr = m.Reconcile(tx, resp) })
		if rerr != nil {
			c.logger.Warn().
				Err(rerr).
				Str("mutation_id", p.ID).
				Str("feature", m.Feature).
				Msg("failed to reconcile server response, keeping optimistic state")
		}
	}

	c.invalidateAccount(ctx, p.Touched)
	metrics.RecordMutation(m.Feature, "committed")
}

func (c *Coordinator) rollback(ctx context.Context, m Mutation, tx *Tx, p *Pending, cause error) {
	var err error
	c.cache.Atomically(func() { err = tx.rollback(ctx) })
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("mutation_id", p.ID).
			Msg("failed to restore cache after mutation failure")
	}
	metrics.RecordMutation(m.Feature, "rolled_back")

	c.reporter.Report(ctx, Report{
		Err:     cause,
		Feature: m.Feature,
		Context: map[string]any{
			"mutation_id": p.ID,
			"action":      string(m.Type),
			"target":      m.Target.String(),
			"category":    category(cause),
		},
	})
}

// invalidateAccount drops the account query so it is refetched with the
// committed counters.
func (c *Coordinator) invalidateAccount(ctx context.Context, touched []entity.Ref) {
	if c.queries == nil {
		return
	}
	account := entity.UserRef(c.session.CurrentUserID())
	for _, ref := range touched {
		if ref != account {
			continue
		}
		if err := c.queries.Invalidate(ctx, ref); err != nil {
			c.logger.Warn().Err(err).Str("ref", ref.String()).Msg("failed to invalidate account query")
		}
	}
}

func category(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Category.String()
	}
	return errors.CategoryExternal.String()
}
