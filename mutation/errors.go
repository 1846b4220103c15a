package mutation

import "github.com/goliatone/go-errors"

// Validation failures. They are returned from the apply phase before any
// network call and are never reported as system failures.
var (
	ErrMissingCurrentUser = errors.New("no signed in user", errors.CategoryAuth)
	ErrSelfAction         = errors.New("cannot act on own entity", errors.CategoryBadInput)
	ErrDuplicateAction    = errors.New("action already applied", errors.CategoryConflict)
	ErrNotCached          = errors.New("entity not cached", errors.CategoryNotFound)
	ErrNotOwner           = errors.New("entity not owned by current user", errors.CategoryAuthz)
)
