package testsupport

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-entity-cache/remote"
)

// FakeRemote is an in-memory remote.Source for tests. It records every call,
// can be told to fail, and can hold mutations until released.
type FakeRemote struct {
	mu    sync.Mutex
	id    string
	codec *remote.Codec

	tracks      map[entity.ID]*entity.Track
	users       map[entity.ID]*entity.User
	collections map[entity.ID]*entity.Collection
	lineups     map[string][]entity.Ref

	bulkCalls   []remote.BulkRequest
	mutateCalls []remote.Action
	pageCalls   []remote.PageRequest

	fetchErr  error
	mutateErr error
	pageErr   error

	mutateGate     chan struct{}
	mutateResponse func(remote.Action) json.RawMessage
}

var _ remote.Source = (*FakeRemote)(nil)

// NewFakeRemote creates an empty fake source that decodes ids with codec.
func NewFakeRemote(id string, codec *remote.Codec) *FakeRemote {
	return &FakeRemote{
		id:          id,
		codec:       codec,
		tracks:      make(map[entity.ID]*entity.Track),
		users:       make(map[entity.ID]*entity.User),
		collections: make(map[entity.ID]*entity.Collection),
		lineups:     make(map[string][]entity.Ref),
	}
}

// MustCodec returns a codec with the default configuration or fails the test.
func MustCodec(t testing.TB) *remote.Codec {
	t.Helper()
	c, err := remote.NewCodec(remote.DefaultCodecConfig())
	if err != nil {
		t.Fatalf("create codec: %v", err)
	}
	return c
}

func (f *FakeRemote) ID() string { return f.id }

// AddTracks stores track payloads served by BulkFetch and FetchPage.
func (f *FakeRemote) AddTracks(tracks ...*entity.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.tracks[t.TrackID] = t.Clone()
	}
}

// AddUsers stores user payloads.
func (f *FakeRemote) AddUsers(users ...*entity.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range users {
		f.users[u.UserID] = u.Clone()
	}
}

// AddCollections stores collection payloads.
func (f *FakeRemote) AddCollections(cols ...*entity.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cols {
		f.collections[c.PlaylistID] = c.Clone()
	}
}

// SetLineup sets the ordered content of a lineup for the given parameters.
func (f *FakeRemote) SetLineup(name string, params map[string]string, refs ...entity.Ref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineups[lineupKey(name, params)] = append([]entity.Ref(nil), refs...)
}

// FailFetch makes BulkFetch return err; nil restores normal behaviour.
func (f *FakeRemote) FailFetch(err error) {
	f.mu.Lock()
	f.fetchErr = err
	f.mu.Unlock()
}

// FailMutate makes Mutate return err; nil restores normal behaviour.
func (f *FakeRemote) FailMutate(err error) {
	f.mu.Lock()
	f.mutateErr = err
	f.mu.Unlock()
}

// FailPages makes FetchPage return err; nil restores normal behaviour.
func (f *FakeRemote) FailPages(err error) {
	f.mu.Lock()
	f.pageErr = err
	f.mu.Unlock()
}

// HoldMutations blocks Mutate until the returned release func is called.
func (f *FakeRemote) HoldMutations() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.mutateGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// RespondToMutations sets the payload returned by Mutate.
func (f *FakeRemote) RespondToMutations(fn func(remote.Action) json.RawMessage) {
	f.mu.Lock()
	f.mutateResponse = fn
	f.mu.Unlock()
}

// BulkCalls returns a copy of every BulkFetch request.
func (f *FakeRemote) BulkCalls() []remote.BulkRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.BulkRequest(nil), f.bulkCalls...)
}

// MutateCalls returns a copy of every Mutate request.
func (f *FakeRemote) MutateCalls() []remote.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Action(nil), f.mutateCalls...)
}

// PageCalls returns a copy of every FetchPage request.
func (f *FakeRemote) PageCalls() []remote.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.PageRequest(nil), f.pageCalls...)
}

// DecodedIDs decodes the ids of a recorded bulk request, sorted.
func (f *FakeRemote) DecodedIDs(req remote.BulkRequest) []entity.ID {
	out := make([]entity.ID, 0, len(req.IDs))
	for _, s := range req.IDs {
		if id, err := f.codec.Decode(s); err == nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *FakeRemote) BulkFetch(ctx context.Context, req remote.BulkRequest) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls = append(f.bulkCalls, req)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	out := make([]json.RawMessage, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, err := f.codec.Decode(s)
		if err != nil {
			return nil, err
		}
		if raw, ok := f.payloadLocked(entity.Ref{ID: id, Kind: req.Kind}); ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (f *FakeRemote) Mutate(ctx context.Context, action remote.Action) (json.RawMessage, error) {
	f.mu.Lock()
	f.mutateCalls = append(f.mutateCalls, action)
	gate := f.mutateGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	if f.mutateResponse != nil {
		return f.mutateResponse(action), nil
	}
	return nil, nil
}

func (f *FakeRemote) FetchPage(ctx context.Context, req remote.PageRequest) (remote.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls = append(f.pageCalls, req)
	if f.pageErr != nil {
		return remote.Page{}, f.pageErr
	}

	refs := f.lineups[lineupKey(req.Lineup, req.Params)]
	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil {
			return remote.Page{}, err
		}
		offset = n
	}
	if offset > len(refs) {
		offset = len(refs)
	}
	end := len(refs)
	if req.Limit > 0 && offset+req.Limit < end {
		end = offset + req.Limit
	}

	page := remote.Page{Items: make([]remote.PageItem, 0, end-offset)}
	for _, ref := range refs[offset:end] {
		if raw, ok := f.payloadLocked(ref); ok {
			page.Items = append(page.Items, remote.PageItem{Kind: ref.Kind, Payload: raw})
		}
	}
	if end < len(refs) {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

func (f *FakeRemote) payloadLocked(ref entity.Ref) (json.RawMessage, bool) {
	var v any
	switch ref.Kind {
	case entity.KindTrack:
		t, ok := f.tracks[ref.ID]
		if !ok {
			return nil, false
		}
		v = t
	case entity.KindUser:
		u, ok := f.users[ref.ID]
		if !ok {
			return nil, false
		}
		v = u
	case entity.KindCollection:
		c, ok := f.collections[ref.ID]
		if !ok {
			return nil, false
		}
		v = c
	default:
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func lineupKey(name string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteString("|" + k + "=" + params[k])
	}
	return sb.String()
}
