package service

import "errors"

// Business errors returned to handlers and the hub. None of these is
// fatal to the process; handlers map them to a rejected command.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrPollExpired        = errors.New("this poll has expired")
	ErrDuplicateVote      = errors.New("you have already voted")
	ErrInvalidVote        = errors.New("invalid vote data")
	ErrInvalidPoll        = errors.New("invalid poll data: question and at least 2 options are required")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")
	ErrStoreUnavailable   = errors.New("poll store temporarily unavailable")
	ErrInternalServer     = errors.New("internal server error")
)
