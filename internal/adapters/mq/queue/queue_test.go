package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/rewind/internal/domain/model"
	"github.com/okian/rewind/internal/domain/value"
)

func sample(id string, ts float64) model.Sample {
	return model.Sample{SampleID: id, ObjectID: "A", PropertyID: "hp", Time: ts, Value: value.Float(ts)}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if err := q.Enqueue(ctx, sample("s1", 1)); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue()
	if got.SampleID != "s1" {
		t.Errorf("expected s1, got %v", got.SampleID)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, sample(fmt.Sprintf("s%d", i), float64(i))); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}
	if err := q.Enqueue(ctx, sample("s3", 3)); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(64))
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := q.Enqueue(ctx, sample(fmt.Sprintf("s%d", i), float64(i))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	_ = q.Close()

	i := 0
	for s := range q.Dequeue() {
		if s.Time != float64(i) {
			t.Fatalf("sample %d out of order: %v", i, s.Time)
		}
		i++
	}
	if i != 50 {
		t.Errorf("expected 50 samples after close, got %d", i)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if err := q.Enqueue(ctx, sample("late", 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With room in the buffer either outcome is allowed; with none, the
	// cancelled context must not block.
	_ = q.Enqueue(ctx, sample("a", 1))
	if err := q.Enqueue(ctx, sample("b", 2)); err == nil {
		t.Error("expected enqueue to fail on a full queue with cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if err := q.Enqueue(ctx, sample(fmt.Sprintf("%d-%d", id, j), float64(j))); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(); l != producers*perProducer {
		t.Errorf("expected %d queued samples, got %d", producers*perProducer, l)
	}
}
