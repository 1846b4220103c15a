package batcher

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-entity-cache/internal/logging"
)

type recordingFetch struct {
	mu    sync.Mutex
	calls [][]int
	data  map[int]string
	err   error
	gate  chan struct{}
}

func (r *recordingFetch) fetch(ctx context.Context, keys []int) (map[int]string, error) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	cp := append([]int(nil), keys...)
	r.calls = append(r.calls, cp)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[int]string)
	for _, k := range keys {
		if v, ok := r.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (r *recordingFetch) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Wait = 20 * time.Millisecond
	return cfg
}

func TestBatcher_OneBulkCallPerWindow(t *testing.T) {
	rec := &recordingFetch{data: map[int]string{1: "one", 3: "three"}}
	b := New("track", rec.fetch, testConfig(), WithLogger(logging.Nop()))

	type outcome struct {
		value string
		found bool
		err   error
	}
	results := make(map[int]outcome)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range []int{1, 2, 3, 1, 2} {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			v, found, err := b.Load(context.Background(), id)
			mu.Lock()
			results[id] = outcome{v, found, err}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if rec.callCount() != 1 {
		t.Fatalf("expected exactly one bulk call, got %d: %v", rec.callCount(), rec.calls)
	}
	keys := rec.calls[0]
	sort.Ints(keys)
	if len(keys) != 3 || keys[0] != 1 || keys[1] != 2 || keys[2] != 3 {
		t.Errorf("expected deduplicated ids [1 2 3], got %v", keys)
	}

	if r := results[1]; !r.found || r.value != "one" || r.err != nil {
		t.Errorf("unexpected result for 1: %+v", r)
	}
	if r := results[3]; !r.found || r.value != "three" || r.err != nil {
		t.Errorf("unexpected result for 3: %+v", r)
	}
	if r := results[2]; r.found || r.err != nil {
		t.Errorf("missing id should resolve as a miss, got %+v", r)
	}
}

func TestBatcher_FailureRejectsWholeBatch(t *testing.T) {
	boom := stderrors.New("network down")
	rec := &recordingFetch{err: boom}
	b := New("user", rec.fetch, testConfig(), WithLogger(logging.Nop()))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = b.Load(context.Background(), i)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !stderrors.Is(err, boom) {
			t.Errorf("caller %d: expected batch error, got %v", i, err)
		}
	}
	if rec.callCount() != 1 {
		t.Errorf("expected one bulk call, got %d", rec.callCount())
	}
}

func TestBatcher_SeparateWindows(t *testing.T) {
	rec := &recordingFetch{data: map[int]string{1: "a", 2: "b"}}
	b := New("track", rec.fetch, testConfig(), WithLogger(logging.Nop()))

	if _, _, err := b.Load(context.Background(), 1); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, _, err := b.Load(context.Background(), 2); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if rec.callCount() != 2 {
		t.Errorf("sequential loads in separate windows should issue 2 calls, got %d", rec.callCount())
	}
}

func TestBatcher_MaxBatchFlushesEarly(t *testing.T) {
	rec := &recordingFetch{data: map[int]string{}}
	cfg := testConfig()
	cfg.Wait = time.Hour
	cfg.MaxBatch = 3
	b := New("track", rec.fetch, cfg, WithLogger(logging.Nop()))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = b.Load(context.Background(), i)
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("full batch was not flushed before the window elapsed")
	}
	if rec.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", rec.callCount())
	}
}

func TestBatcher_CallerCancellationDoesNotAbortBatch(t *testing.T) {
	rec := &recordingFetch{data: map[int]string{1: "a"}, gate: make(chan struct{})}
	b := New("track", rec.fetch, testConfig(), WithLogger(logging.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := b.Load(ctx, 1)
		errCh <- err
	}()

	valueCh := make(chan string, 1)
	go func() {
		v, _, _ := b.Load(context.Background(), 1)
		valueCh <- v
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	if err := <-errCh; !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	close(rec.gate)
	if v := <-valueCh; v != "a" {
		t.Errorf("other caller should still get its value, got %q", v)
	}
}

func TestBatcher_Close(t *testing.T) {
	rec := &recordingFetch{data: map[int]string{}}
	b := New("track", rec.fetch, testConfig(), WithLogger(logging.Nop()))
	b.Close()

	if _, _, err := b.Load(context.Background(), 1); !stderrors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestBatcher_FlushAsyncDoesNotWaitForFetch(t *testing.T) {
	gate := make(chan struct{})
	rec := &recordingFetch{data: map[int]string{1: "one"}, gate: gate}
	cfg := testConfig()
	cfg.Wait = 5 * time.Second
	b := New("track", rec.fetch, cfg, WithLogger(logging.Nop()))

	type outcome struct {
		value string
		err   error
	}
	got := make(chan outcome, 1)
	go func() {
		v, _, err := b.Load(context.Background(), 1)
		got <- outcome{v, err}
	}()
	time.Sleep(10 * time.Millisecond)

	returned := make(chan struct{})
	go func() {
		b.FlushAsync()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("FlushAsync blocked on the bulk fetch")
	}

	close(gate)
	select {
	case o := <-got:
		if o.err != nil || o.value != "one" {
			t.Errorf("unexpected load outcome %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("pending load was never served")
	}
	if rec.callCount() != 1 {
		t.Errorf("expected one bulk call, got %d", rec.callCount())
	}
}

func TestRegistry_EvictionFlushesPendingBatch(t *testing.T) {
	rec := &recordingFetch{data: map[int]string{1: "one"}}
	cfg := testConfig()
	cfg.Wait = 5 * time.Second
	cfg.PartitionTTL = 30 * time.Millisecond
	reg := NewRegistry[int, string]("track", cfg, func(Partition) FetchFunc[int, string] {
		return rec.fetch
	}, WithLogger(logging.Nop()))
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, found, err := reg.For(Partition{SourceID: "api", UserID: 1}).Load(ctx, 1)
	if err != nil || !found || v != "one" {
		t.Fatalf("expected eviction to flush the batch, got %q %v %v", v, found, err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected the idle partition to be evicted, got %d", reg.Len())
	}
}

func TestRegistry_MemoizesPerPartition(t *testing.T) {
	var built atomic.Int32
	reg := NewRegistry[int, string]("track", testConfig(), func(p Partition) FetchFunc[int, string] {
		built.Add(1)
		return func(ctx context.Context, keys []int) (map[int]string, error) {
			return map[int]string{}, nil
		}
	}, WithLogger(logging.Nop()))
	defer reg.Close()

	alice := Partition{SourceID: "api", UserID: 1}
	bob := Partition{SourceID: "api", UserID: 2}

	a1 := reg.For(alice)
	a2 := reg.For(alice)
	b1 := reg.For(bob)

	if a1 != a2 {
		t.Error("expected the same batcher for the same partition")
	}
	if a1 == b1 {
		t.Error("different users must not share a batcher")
	}
	if built.Load() != 2 {
		t.Errorf("expected 2 factories built, got %d", built.Load())
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 live partitions, got %d", reg.Len())
	}
}

func TestPartition_Hash(t *testing.T) {
	a := Partition{SourceID: "api", UserID: 1}
	if a.Hash() != (Partition{SourceID: "api", UserID: 1}).Hash() {
		t.Error("hash must be stable")
	}
	if a.Hash() == (Partition{SourceID: "api", UserID: 2}).Hash() {
		t.Error("different users should hash differently")
	}
	if a.Hash() == (Partition{SourceID: "api1", UserID: 0}).Hash() {
		t.Error("source and user must not run together")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	bad := DefaultConfig()
	bad.Wait = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero wait")
	}
}
