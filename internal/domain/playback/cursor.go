// Package playback provides cursors for scrubbing a recorded timeline.
//
// A Cursor is a lightweight read view: it remembers a position and resolves
// state through the timeline's own query API. Seek is true random access;
// nothing about the previous position is reused, so jumping backwards costs
// the same as stepping forwards.
package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
)

// Source is the read side of a timeline.
type Source interface {
	StateAt(ts float64, policy timeline.Policy) map[string]value.Value
	Span() (timeline.Span, bool)
	Crossings(from, to float64) []timeline.Crossing
}

// Direction of playback.
type Direction int8

const (
	Forward  Direction = 1
	Backward Direction = -1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Progress reports the outcome of an Advance call.
type Progress struct {
	From      float64             `json:"from"`
	To        float64             `json:"to"`
	Crossings []timeline.Crossing `json:"crossings,omitempty"`
	Looped    bool                `json:"looped"`
	Laps      int                 `json:"laps,omitempty"`
	Finished  bool                `json:"finished"`
}

// maxReportedLaps bounds the crossings of one Advance call when a large dt
// wraps a short recording many times. Laps still counts every wrap.
const maxReportedLaps = 64

// Cursor is a position over one timeline.
type Cursor struct {
	mu         sync.Mutex
	src        Source
	t          float64
	positioned bool
	rate       float64
	looping    bool
	playing    bool
	dir        Direction
}

// New creates a cursor over src, positioned at the start of the recording
// unless WithStart says otherwise.
func New(src Source, opts ...Option) *Cursor {
	c := &Cursor{
		src:  src,
		rate: 1,
		dir:  Forward,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.positioned {
		if span, ok := src.Span(); ok {
			c.t = span.Start
		}
	}
	return c
}

func validRate(r float64) bool {
	return r > 0 && !math.IsInf(r, 0)
}

// Time returns the current position.
func (c *Cursor) Time() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Seek moves to ts, forward or backward.
func (c *Cursor) Seek(ts float64) error {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTime, ts)
	}
	c.mu.Lock()
	c.t = ts
	c.mu.Unlock()
	return nil
}

// Step moves by delta relative to the current position.
func (c *Cursor) Step(delta float64) error {
	c.mu.Lock()
	target := c.t + delta
	c.mu.Unlock()
	return c.Seek(target)
}

// Sample resolves the state of the timeline at the current position.
func (c *Cursor) Sample(policy timeline.Policy) map[string]value.Value {
	return c.src.StateAt(c.Time(), policy)
}

// Play starts forward playback.
func (c *Cursor) Play() { c.start(Forward) }

// Reverse starts backward playback.
func (c *Cursor) Reverse() { c.start(Backward) }

func (c *Cursor) start(d Direction) {
	c.mu.Lock()
	c.playing = true
	c.dir = d
	c.mu.Unlock()
}

// Stop pauses playback; the position is kept.
func (c *Cursor) Stop() {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
}

// IsPlaying reports whether Advance moves the cursor.
func (c *Cursor) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Direction returns the playback direction.
func (c *Cursor) Direction() Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// SetPlayRate scales subsequent Advance calls.
func (c *Cursor) SetPlayRate(rate float64) error {
	if !validRate(rate) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
	return nil
}

// PlayRate returns the current play rate.
func (c *Cursor) PlayRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetLooping toggles wrap-around at the ends of the recording.
func (c *Cursor) SetLooping(looping bool) {
	c.mu.Lock()
	c.looping = looping
	c.mu.Unlock()
}

// Looping reports whether playback wraps at the ends.
func (c *Cursor) Looping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.looping
}

// Advance moves a playing cursor by dt scaled by the play rate, in the
// current direction. Without looping the cursor stops at the end of the
// recording (the start, in reverse) and reports Finished.
func (c *Cursor) Advance(dt float64) Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := Progress{From: c.t, To: c.t}
	if !c.playing || !(dt > 0) || math.IsInf(dt, 0) {
		return p
	}

	target := c.t + dt*c.rate*float64(c.dir)
	span, ok := c.src.Span()
	if !ok {
		c.t = target
		p.To = target
		return p
	}

	switch {
	case c.dir == Forward && target >= span.End:
		p.Crossings = c.src.Crossings(c.t, span.End)
		if c.looping && span.End > span.Start {
			target = c.wrap(&p, span, target-span.End)
		} else {
			target = span.End
			p.Finished = true
			c.playing = false
		}
	case c.dir == Backward && target <= span.Start:
		p.Crossings = c.src.Crossings(c.t, span.Start)
		if c.looping && span.End > span.Start {
			target = c.wrap(&p, span, span.Start-target)
		} else {
			target = span.Start
			p.Finished = true
			c.playing = false
		}
	default:
		p.Crossings = c.src.Crossings(c.t, target)
	}

	c.t = target
	p.To = target
	return p
}

// wrap lands a looping move that ran overshoot past the end of the
// recording (the start, in reverse). Every completed lap adds its crossings,
// up to maxReportedLaps of them.
func (c *Cursor) wrap(p *Progress, span timeline.Span, overshoot float64) float64 {
	length := span.End - span.Start
	laps := math.Floor(overshoot / length)
	partial := overshoot - laps*length

	edge, far, target := math.Nextafter(span.Start, math.Inf(-1)), span.End, span.Start+partial
	if c.dir == Backward {
		edge, far, target = math.Nextafter(span.End, math.Inf(1)), span.Start, span.End-partial
	}

	p.Looped = true
	p.Laps = 1 + int(math.Min(laps, math.MaxInt32))
	if reported := int(math.Min(laps, maxReportedLaps)); reported > 0 {
		lap := c.src.Crossings(edge, far)
		for i := 0; i < reported; i++ {
			p.Crossings = append(p.Crossings, lap...)
		}
	}
	p.Crossings = append(p.Crossings, c.src.Crossings(edge, target)...)
	return target
}

// Crossed returns the samples between two positions without moving the
// cursor.
func (c *Cursor) Crossed(from, to float64) []timeline.Crossing {
	return c.src.Crossings(from, to)
}
