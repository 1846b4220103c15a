package remote

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-errors"
	gobreaker "github.com/sony/gobreaker/v2"
)

type flakySource struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *flakySource) ID() string { return "flaky" }

func (f *flakySource) BulkFetch(ctx context.Context, req BulkRequest) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, f.err
}

func (f *flakySource) Mutate(ctx context.Context, action Action) (json.RawMessage, error) {
	return nil, nil
}

func (f *flakySource) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	return Page{}, nil
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	src := &flakySource{err: stderrors.New("503")}
	b := NewBreaker(src, BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.BulkFetch(ctx, BulkRequest{}); !stderrors.Is(err, src.err) {
			t.Fatalf("call %d: expected source error, got %v", i, err)
		}
	}

	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", b.State())
	}

	_, err := b.BulkFetch(ctx, BulkRequest{})
	if !errors.IsCategory(err, errors.CategoryExternal) {
		t.Errorf("expected external error while open, got %v", err)
	}
	if !stderrors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState to stay reachable, got %v", err)
	}
	if src.calls != 2 {
		t.Errorf("open breaker should not call the source, calls=%d", src.calls)
	}
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	src := &flakySource{err: context.Canceled}
	b := NewBreaker(src, BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, _ = b.BulkFetch(context.Background(), BulkRequest{})
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("cancellations should not trip the breaker, state=%v", b.State())
	}
}
