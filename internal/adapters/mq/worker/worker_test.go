package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/rewind/internal/adapters/mq/queue"
	"github.com/okian/rewind/internal/adapters/mq/worker"
	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/internal/domain/recorder"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	logging "github.com/okian/rewind/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	ch chan worker.Sample
}

func newMockQueue() *mockQueue {
	return &mockQueue{ch: make(chan worker.Sample, 16)}
}

func (m *mockQueue) Dequeue() <-chan worker.Sample { return m.ch }

// mockRecorder keeps the timestamps applied per object and fails objects
// with a configured error.
type mockRecorder struct {
	mu     sync.Mutex
	calls  map[string][]float64
	errors map[string]error
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{calls: map[string][]float64{}, errors: map[string]error{}}
}

func (m *mockRecorder) RecordSample(objectID, _ string, ts float64, _ value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors[objectID]; ok {
		return err
	}
	m.calls[objectID] = append(m.calls[objectID], ts)
	return nil
}

func (m *mockRecorder) times(objectID string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.calls[objectID]...)
}

func sample(id, object string, ts float64) model.Sample {
	return model.Sample{SampleID: id, ObjectID: object, PropertyID: "hp", Time: ts, Value: value.Float(ts)}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading a queue", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		rec := newMockRecorder()
		rec.errors["ghost"] = fmt.Errorf("object %q: %w", "ghost", recorder.ErrUntrackedObject)

		var (
			mu      sync.Mutex
			results []error
		)
		w := worker.NewInMemoryWorker(q, rec,
			worker.WithName("w-test"),
			worker.WithResultHook(func(_ context.Context, _ worker.Sample, err error) {
				mu.Lock()
				results = append(results, err)
				mu.Unlock()
			}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When samples arrive", func() {
			q.ch <- sample("s1", "A", 1)
			q.ch <- sample("s2", "ghost", 1)
			q.ch <- sample("s3", "A", 2)
			close(q.ch)
			<-w.Done()

			convey.Convey("Then each is applied and its outcome reported", func() {
				convey.So(rec.times("A"), convey.ShouldResemble, []float64{1, 2})
				convey.So(w.Processed(), convey.ShouldEqual, uint64(3))
				mu.Lock()
				defer mu.Unlock()
				convey.So(results, convey.ShouldHaveLength, 3)
				convey.So(results[0], convey.ShouldBeNil)
				convey.So(errors.Is(results[1], recorder.ErrUntrackedObject), convey.ShouldBeTrue)
				convey.So(results[2], convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then the worker stops", func() {
				stopped := false
				select {
				case <-w.Done():
					stopped = true
				case <-time.After(2 * time.Second):
				}
				convey.So(stopped, convey.ShouldBeTrue)
			})
		})
	})
}

func TestRejectReason(t *testing.T) {
	convey.Convey("Given recorder errors", t, func() {
		convey.So(worker.RejectReason(fmt.Errorf("x: %w", timeline.ErrNonMonotonicTime)), convey.ShouldEqual, worker.ReasonNonMonotonic)
		convey.So(worker.RejectReason(recorder.ErrUntrackedObject), convey.ShouldEqual, worker.ReasonUntracked)
		convey.So(worker.RejectReason(timeline.ErrInvalidSample), convey.ShouldEqual, worker.ReasonInvalid)
		convey.So(worker.RejectReason(errors.New("boom")), convey.ShouldEqual, worker.ReasonOther)
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of four workers over a real recorder", t, func() {
		_ = logging.Init()

		rec := recorder.New()
		objects := []string{"a", "b", "c", "d", "e", "f"}
		for _, id := range objects {
			_, err := rec.StartTracking(id, timeline.MaxEntries(1024))
			convey.So(err, convey.ShouldBeNil)
		}

		var failures sync.Map
		pool := worker.NewPool(4, rec,
			worker.WithQueueCapacity(4096),
			worker.WithPoolResultHook(func(_ context.Context, s worker.Sample, err error) {
				if err != nil {
					failures.Store(s.SampleID, err)
				}
			}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)
		convey.So(pool.Cap(), convey.ShouldEqual, 4096)

		convey.Convey("When many producers submit ordered samples per object", func() {
			var wg sync.WaitGroup
			for _, id := range objects {
				wg.Add(1)
				go func(object string) {
					defer wg.Done()
					for i := 0; i < 200; i++ {
						s := sample(fmt.Sprintf("%s-%d", object, i), object, float64(i))
						for pool.Submit(ctx, s) != nil {
							time.Sleep(time.Millisecond)
						}
					}
				}(id)
			}
			wg.Wait()
			convey.So(waitFor(func() bool { return pool.Pending() == 0 }), convey.ShouldBeTrue)

			convey.Convey("Then every sample lands in order with no rejections", func() {
				for _, id := range objects {
					tl, err := rec.TimelineFor(id)
					convey.So(err, convey.ShouldBeNil)
					convey.So(tl.Stats().Samples, convey.ShouldEqual, 200)
					convey.So(tl.Stats().Rejected, convey.ShouldEqual, uint64(0))
				}
				count := 0
				failures.Range(func(_, _ any) bool { count++; return true })
				convey.So(count, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When an object is routed", func() {
			convey.Convey("Then it always maps to the same worker", func() {
				for _, id := range objects {
					convey.So(pool.Shard(id), convey.ShouldEqual, pool.Shard(id))
					convey.So(pool.Shard(id), convey.ShouldBeBetweenOrEqual, 0, 3)
				}
			})
		})

		convey.Convey("When the pool shuts down", func() {
			convey.So(pool.Submit(ctx, sample("last", "a", 5000)), convey.ShouldBeNil)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then queued samples are drained and new ones refused", func() {
				tl, _ := rec.TimelineFor("a")
				v, err := tl.ValueAt("hp", 5000, timeline.Hold)
				convey.So(err, convey.ShouldBeNil)
				f, _ := v.AsFloat()
				convey.So(f, convey.ShouldEqual, 5000.0)
				convey.So(errors.Is(pool.Submit(ctx, sample("late", "a", 6000)), queue.ErrClosed), convey.ShouldBeTrue)
				convey.So(pool.Pending(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestWorkerPool_Backpressure(t *testing.T) {
	convey.Convey("Given a pool that is never started", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(1, newMockRecorder(), worker.WithQueueCapacity(2))
		ctx := context.Background()

		convey.So(pool.Submit(ctx, sample("1", "A", 1)), convey.ShouldBeNil)
		convey.So(pool.Submit(ctx, sample("2", "A", 2)), convey.ShouldBeNil)

		convey.Convey("When its queue is full", func() {
			err := pool.Submit(ctx, sample("3", "A", 3))

			convey.Convey("Then submissions fail with ErrFull", func() {
				convey.So(errors.Is(err, queue.ErrFull), convey.ShouldBeTrue)
				convey.So(pool.Len(), convey.ShouldEqual, 2)
				convey.So(pool.Pending(), convey.ShouldEqual, 2)
			})
		})
	})
}
