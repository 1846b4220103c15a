package query

import (
	"context"

	"github.com/goliatone/go-entity-cache/entity"
	"golang.org/x/sync/errgroup"
)

// ManyResult aggregates the reads of several ids.
//
// Status is the worst constituent status (loading over error over success).
// A successful aggregate is downgraded to StatusLoading while any found
// entity is not yet visible in the legacy store; those ids are listed in
// Unmirrored.
type ManyResult[T any] struct {
	Data       []T
	Results    []Result[T]
	Status     Status
	Err        error
	Unmirrored []entity.ID
}

// Ready reports whether every requested entity can be rendered.
func (m ManyResult[T]) Ready() bool {
	return m.Status == StatusSuccess
}

// GetMany reads every id concurrently and waits for all of them. Data keeps
// request order and skips ids that were not found.
func (c *Coordinator[T]) GetMany(ctx context.Context, ids []entity.ID) ManyResult[T] {
	results := make([]Result[T], len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i] = c.Get(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return c.aggregate(ctx, ids, results)
}

// PeekMany is the non-blocking counterpart of GetMany.
func (c *Coordinator[T]) PeekMany(ctx context.Context, ids []entity.ID) ManyResult[T] {
	results := make([]Result[T], len(ids))
	for i, id := range ids {
		results[i] = c.Peek(ctx, id)
	}
	return c.aggregate(ctx, ids, results)
}

func (c *Coordinator[T]) aggregate(ctx context.Context, ids []entity.ID, results []Result[T]) ManyResult[T] {
	out := ManyResult[T]{Results: results, Status: StatusDisabled}
	var found []entity.ID

	for i, r := range results {
		if r.Status == StatusDisabled {
			continue
		}
		out.Status = worst(out.Status, r.Status)
		if r.Err != nil && out.Err == nil {
			out.Err = r.Err
		}
		if r.Found {
			out.Data = append(out.Data, r.Data)
			found = append(found, ids[i])
		}
	}

	if out.Status != StatusSuccess || c.presence == nil {
		return out
	}

	for _, id := range found {
		ref := entity.Ref{ID: id, Kind: c.src.Kind}
		ok, err := c.presence.Contains(ctx, ref)
		if err != nil {
			c.logger.Warn().Err(err).Str("ref", ref.String()).Msg("legacy presence check failed")
		}
		if err != nil || !ok {
			out.Unmirrored = append(out.Unmirrored, id)
		}
	}
	if len(out.Unmirrored) > 0 {
		out.Status = StatusLoading
	}
	return out
}
