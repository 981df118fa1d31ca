package playback

import "errors"

// Sentinel kinds for playback errors.
var (
	ErrInvalidRate = errors.New("play rate must be positive and finite")
	ErrInvalidTime = errors.New("cursor time must be finite")
)
