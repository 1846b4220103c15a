// Package entity defines the normalized records held by the entity cache:
// tracks, users and collections, plus the lightweight references lineups
// keep to them.
//
// Payloads arriving from the remote source may embed related entities (a
// track's owner, a collection's tracks). The Normalize functions strip those
// embeds, keeping only ids, and hand the embedded records back so they can be
// cached on their own.
package entity

import (
	"fmt"
	"strconv"
)

// ID is the numeric identifier of an entity, unique per Kind.
type ID int64

// String renders the id in base 10.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Kind tags the entity type an ID belongs to.
type Kind string

const (
	KindTrack      Kind = "track"
	KindUser       Kind = "user"
	KindCollection Kind = "collection"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTrack, KindUser, KindCollection:
		return true
	default:
		return false
	}
}

// Ref points at a cached entity by id and kind. Lineups hold refs, never
// entities.
type Ref struct {
	ID   ID   `json:"id" msgpack:"id"`
	Kind Kind `json:"kind" msgpack:"kind"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// TrackRef, UserRef and CollectionRef build refs for the given id.
func TrackRef(id ID) Ref      { return Ref{ID: id, Kind: KindTrack} }
func UserRef(id ID) Ref       { return Ref{ID: id, Kind: KindUser} }
func CollectionRef(id ID) Ref { return Ref{ID: id, Kind: KindCollection} }

// Entity is implemented by every cached record.
type Entity interface {
	EntityRef() Ref
}

var (
	_ Entity = (*Track)(nil)
	_ Entity = (*User)(nil)
	_ Entity = (*Collection)(nil)
)
