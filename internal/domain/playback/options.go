package playback

// Option applies a configuration option to the Cursor.
type Option func(*Cursor)

// WithStart places the cursor at t instead of the start of the recording.
func WithStart(t float64) Option {
	return func(c *Cursor) {
		c.t = t
		c.positioned = true
	}
}

// WithPlayRate scales Advance. Non-positive rates are ignored.
func WithPlayRate(rate float64) Option {
	return func(c *Cursor) {
		if validRate(rate) {
			c.rate = rate
		}
	}
}

// WithLooping wraps playback at the ends of the recording.
func WithLooping(looping bool) Option {
	return func(c *Cursor) {
		c.looping = looping
	}
}
