package repository

import "errors"

// Sentinel errors shared by every repository implementation. Services
// branch on these instead of on driver errors.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry means the write violated a uniqueness constraint.
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

// Resource-specific names for the shared sentinels.
var (
	ErrPollNotFound = ErrNotFound
	ErrUserNotFound = ErrNotFound
	// ErrDuplicateVote is the `(poll_id, user_id)` unique index firing:
	// the storage-level last line of defense for one vote per user.
	ErrDuplicateVote = errors.New("repository: user already voted in this poll")
)
