package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrCursorNotFound  = errors.New("cursor not found")
	ErrTooManyCursors  = errors.New("too many open cursors")
	ErrInvalidArgument = errors.New("invalid argument")
)
