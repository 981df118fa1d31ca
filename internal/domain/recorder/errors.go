package recorder

import "errors"

// Sentinel kinds for recorder errors.
var (
	ErrUntrackedObject = errors.New("object is not tracked")
	ErrPolicyConflict  = errors.New("object already tracked with a different retention policy")
	ErrInvalidObjectID = errors.New("invalid object id")
)
