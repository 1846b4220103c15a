// Package session tracks who the cache is acting for.
package session

import (
	"sync/atomic"

	"github.com/goliatone/go-entity-cache/batcher"
	"github.com/goliatone/go-entity-cache/entity"
)

// Session holds the remote source handle and the signed-in user. A zero user
// id means nobody is signed in.
type Session struct {
	sourceID string
	userID   atomic.Int64
}

// New creates a signed-out session for sourceID.
func New(sourceID string) *Session {
	return &Session{sourceID: sourceID}
}

func (s *Session) SourceID() string { return s.sourceID }

// CurrentUserID returns the signed-in user, or zero.
func (s *Session) CurrentUserID() entity.ID {
	return entity.ID(s.userID.Load())
}

// SignIn switches the acting user. Batchers are partitioned by user, so
// requests issued after SignIn never share a bulk fetch with earlier ones.
func (s *Session) SignIn(id entity.ID) {
	s.userID.Store(int64(id))
}

// SignOut clears the acting user.
func (s *Session) SignOut() {
	s.userID.Store(0)
}

// Partition returns the batcher partition for the current user.
func (s *Session) Partition() batcher.Partition {
	return batcher.Partition{SourceID: s.sourceID, UserID: s.userID.Load()}
}
