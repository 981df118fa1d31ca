package value

import "errors"

// Sentinel kinds for value errors.
var (
	ErrUnknownKind  = errors.New("unknown value kind")
	ErrInvalidValue = errors.New("invalid value payload")
)
