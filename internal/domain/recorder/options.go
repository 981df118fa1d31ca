package recorder

import "github.com/google/uuid"

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithCompaction enables run coalescing for every timeline the recorder
// creates.
func WithCompaction(enabled bool) Option {
	return func(r *Recorder) {
		r.compact = enabled
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id uuid.UUID) Option {
	return func(r *Recorder) {
		if id != uuid.Nil {
			r.session = id
		}
	}
}
