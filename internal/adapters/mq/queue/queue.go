// Package queue buffers captured samples between the HTTP edge and the
// workers that apply them to timelines.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Sample is the payload flowing through the queue.
type Sample = model.Sample

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a sample without blocking. It fails with ErrFull when the
	// buffer is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, s Sample) error

	// Dequeue returns the channel samples are delivered on, in enqueue
	// order. The channel is closed by Close once drained.
	Dequeue() <-chan Sample

	// Len returns the number of buffered samples.
	Len() int

	// Cap returns the configured capacity.
	Cap() int

	// Close stops accepting samples.
	Close() error

	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	samples  chan Sample
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.samples = make(chan Sample, q.capacity)
	return q
}

// Enqueue adds a sample to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Sample) error { //nolint:gocritic // hugeParam: Sample is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.samples <- s:
		metrics.RecordQueueEnqueue()
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue: %w", ctx.Err())
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the delivery channel.
func (q *InMemoryQueue) Dequeue() <-chan Sample {
	return q.samples
}

// Len returns the current number of queued samples.
func (q *InMemoryQueue) Len() int {
	return len(q.samples)
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close stops accepting samples. Buffered samples remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.samples)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
