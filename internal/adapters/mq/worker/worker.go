// Package worker applies queued samples to timelines.
//
// A Pool owns one queue per worker and routes every sample by a hash of its
// object ID, so all samples of one object are applied by the same goroutine
// in the order they were accepted. Tracks therefore only ever see a single
// writer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/rewind/internal/adapters/mq/queue"
	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/internal/domain/recorder"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	"github.com/okian/rewind/pkg/logger"
	"github.com/okian/rewind/pkg/metrics"
)

// Default worker configuration constants.
const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
	defaultPoolCapacity   = 100000
)

// Sample is what workers read off their queue.
type Sample = model.Sample

// Recorder applies samples to timelines.
type Recorder interface {
	RecordSample(objectID, propertyID string, ts float64, v value.Value) error
}

// Queue defines how workers receive samples.
type Queue interface {
	Dequeue() <-chan Sample
}

// ResultHook observes the outcome of applying a sample.
type ResultHook func(ctx context.Context, s Sample, err error)

// Worker applies samples until stopped.
type Worker interface {
	// Run processes samples until the queue is closed and drained or ctx is
	// cancelled.
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	recorder Recorder
	name     string
	hook     ResultHook

	processed atomic.Uint64
	done      chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, rec Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		recorder: rec,
		name:     "worker",
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	samples := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			err := w.process(ctx, s)
			if w.hook != nil {
				w.hook(ctx, s, err)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Processed returns the number of samples handled, successful or not.
func (w *InMemoryWorker) Processed() uint64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, s Sample) error { //nolint:gocritic // hugeParam: Sample is passed by value for channel semantics
	start := time.Now()
	defer func() {
		w.processed.Add(1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	err := w.recorder.RecordSample(s.ObjectID, s.PropertyID, s.Time, s.Value)
	if err == nil {
		metrics.RecordSampleRecorded()
		return nil
	}

	reason := RejectReason(err)
	metrics.RecordSampleRejected(reason)
	if reason == ReasonUntracked {
		metrics.RecordUntrackedSample()
	}

	fields := []logger.Field{
		logger.String("sampleID", s.SampleID),
		logger.String("objectID", s.ObjectID),
		logger.String("propertyID", s.PropertyID),
		logger.Float64("t", s.Time),
		logger.String("reason", reason),
		logger.Error(err),
	}
	if reason == ReasonOther {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "record_failed")
		w.logger.Error(ctx, "sample not recorded", fields...)
	} else {
		w.logger.Debug(ctx, "sample rejected", fields...)
	}
	return fmt.Errorf("sample %s: %w", s.SampleID, err)
}

// Rejection reasons used as metric labels.
const (
	ReasonNonMonotonic = "non_monotonic"
	ReasonUntracked    = "untracked"
	ReasonInvalid      = "invalid"
	ReasonOther        = "other"
)

// RejectReason classifies a RecordSample error.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, timeline.ErrNonMonotonicTime):
		return ReasonNonMonotonic
	case errors.Is(err, recorder.ErrUntrackedObject):
		return ReasonUntracked
	case errors.Is(err, timeline.ErrInvalidSample):
		return ReasonInvalid
	default:
		return ReasonOther
	}
}

// Pool manages workers and their private queues.
type Pool struct {
	workers  []*InMemoryWorker
	queues   []*queue.InMemoryQueue
	recorder Recorder
	capacity int
	hook     ResultHook

	pending atomic.Int64

	shutdown chan struct{}

	lastProcessed     uint64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers applying samples to rec.
// A non-positive workerCount uses one worker per CPU.
func NewPool(workerCount int, rec Recorder, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queues:            make([]*queue.InMemoryQueue, workerCount),
		recorder:          rec,
		capacity:          defaultPoolCapacity,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	perWorker := p.capacity / workerCount
	if perWorker < 1 {
		perWorker = 1
	}
	hook := func(ctx context.Context, s Sample, err error) {
		if p.hook != nil {
			p.hook(ctx, s, err)
		}
		p.pending.Add(-1)
	}
	for i := 0; i < workerCount; i++ {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(perWorker))
		p.workers[i] = NewInMemoryWorker(
			p.queues[i],
			rec,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger.Named("worker-"+strconv.Itoa(i))),
			WithResultHook(hook),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)
	metrics.UpdateQueueCapacity(perWorker * workerCount)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Shard returns the worker index that owns objectID.
func (p *Pool) Shard(objectID string) int {
	return int(xxhash.Sum64String(objectID) % uint64(len(p.workers)))
}

// Submit queues s on the worker owning its object. It fails with
// queue.ErrFull when that worker is backlogged.
func (p *Pool) Submit(ctx context.Context, s Sample) error { //nolint:gocritic // hugeParam: Sample is passed by value for channel semantics
	p.pending.Add(1)
	if err := p.queues[p.Shard(s.ObjectID)].Enqueue(ctx, s); err != nil {
		p.pending.Add(-1)
		return err
	}
	return nil
}

// Pending returns the number of accepted samples not yet applied.
func (p *Pool) Pending() int64 {
	return p.pending.Load()
}

// Len returns the number of buffered samples across all workers.
func (p *Pool) Len() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

// Cap returns the total queue capacity.
func (p *Pool) Cap() int {
	n := 0
	for _, q := range p.queues {
		n += q.Cap()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	size, capacity := p.Len(), p.Cap()
	metrics.UpdateQueueSize(size)
	if capacity > 0 {
		metrics.UpdateQueueUtilization(float64(size) / float64(capacity))
	}

	var processed uint64
	for _, w := range p.workers {
		processed += w.Processed()
	}
	now := time.Now()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(processed-p.lastProcessed) / elapsed)
	}
	p.lastProcessed = processed
	p.lastProcessedTime = now
}

// Shutdown stops accepting samples and waits for the workers to drain
// their queues.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, q := range p.queues {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
