// Package remote defines the boundary to the backend API: bulk entity
// fetches, mutations and lineup pages. Ids cross this boundary encoded (see
// Codec); nothing past it deals in encoded ids.
package remote

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
)

// BulkRequest asks for several entities of one kind.
type BulkRequest struct {
	Kind          entity.Kind
	IDs           []string
	CurrentUserID string
}

// Fetcher returns the raw payloads of the requested entities. Entities that
// do not exist or are not visible are simply left out.
type Fetcher interface {
	BulkFetch(ctx context.Context, req BulkRequest) ([]json.RawMessage, error)
}

// ActionType names a mutation.
type ActionType string

const (
	ActionFavorite   ActionType = "favorite"
	ActionUnfavorite ActionType = "unfavorite"
	ActionRepost     ActionType = "repost"
	ActionUndoRepost ActionType = "undo_repost"
	ActionFollow     ActionType = "follow"
	ActionUnfollow   ActionType = "unfollow"
	ActionDelete     ActionType = "delete"
	ActionUpdate     ActionType = "update"
)

// Action is a single-entity mutation request.
type Action struct {
	Type          ActionType
	Kind          entity.Kind
	ID            string
	CurrentUserID string
	Payload       json.RawMessage
}

// Writer applies mutations. The returned payload, when non-empty, is the
// server's view of the entity after the mutation.
type Writer interface {
	Mutate(ctx context.Context, action Action) (json.RawMessage, error)
}

// PageRequest asks for one page of a lineup.
type PageRequest struct {
	Lineup        string
	Params        map[string]string
	Cursor        string
	Limit         int
	CurrentUserID string
}

// PageItem is one entry of a lineup page with its raw entity payload.
type PageItem struct {
	Kind    entity.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Page is one lineup page. An empty Next means there are no more pages.
type Page struct {
	Items []PageItem `json:"items"`
	Next  string     `json:"next"`
}

// LineupSource serves lineup pages.
type LineupSource interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// Source is a complete remote data source.
type Source interface {
	// ID identifies the source instance; batchers are partitioned by it.
	ID() string
	Fetcher
	Writer
	LineupSource
}
