package timeline

import "errors"

// Sentinel kinds for timeline errors. These allow errors.Is from callers.
var (
	ErrNonMonotonicTime = errors.New("timestamp not after last recorded sample")
	ErrNoData           = errors.New("no data at requested time")
	ErrUnknownProperty  = errors.New("property not recorded")
	ErrInvalidPolicy    = errors.New("invalid retention policy")
	ErrInvalidSample    = errors.New("invalid sample")
)
