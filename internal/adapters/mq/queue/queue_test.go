package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/photodispatch/internal/domain/model"
)

func pair(from, to string) Pair {
	return model.RoutePair{From: model.Location{Neighborhood: from}, To: model.Location{Neighborhood: to}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, pair("Centro", "Batel")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.From.Neighborhood != "Centro" || got.To.Neighborhood != "Batel" {
		t.Errorf("unexpected pair %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, pair("a", "b")) || !q.Enqueue(ctx, pair("b", "a")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, pair("a", "c")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	producers, perProducer := 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				p := pair(fmt.Sprintf("n%d", id), fmt.Sprintf("n%d", j))
				for !q.Enqueue(ctx, p) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	consumed := make(chan struct{}, producers*perProducer)
	out := q.Dequeue(ctx)
	go func() {
		for range out {
			consumed <- struct{}{}
		}
	}()

	wg.Wait()
	deadline := time.After(2 * time.Second)
	for n := 0; n < producers*perProducer; n++ {
		select {
		case <-consumed:
		case <-deadline:
			t.Fatalf("consumed %d of %d pairs", n, producers*perProducer)
		}
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_EnqueueAll(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()
	pairs := []Pair{pair("a", "b"), pair("b", "a"), pair("a", "c"), pair("c", "a")}

	out := q.Dequeue(ctx)
	got := make(chan int, 1)
	go func() {
		n := 0
		for range out {
			n++
			if n == len(pairs) {
				break
			}
		}
		got <- n
	}()

	n, err := q.EnqueueAll(ctx, pairs, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(pairs) {
		t.Errorf("expected %d accepted, got %d", len(pairs), n)
	}
	if c := <-got; c != len(pairs) {
		t.Errorf("expected %d consumed, got %d", len(pairs), c)
	}
}

func TestInMemoryQueue_EnqueueAllGivesUp(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := q.EnqueueAll(ctx, []Pair{pair("a", "b"), pair("b", "a")}, time.Millisecond)
	if n != 1 {
		t.Errorf("expected 1 accepted, got %d", n)
	}
	if !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}

	_ = q.Close()
	n, err = q.EnqueueAll(context.Background(), []Pair{pair("c", "d")}, time.Millisecond)
	if n != 0 || !errors.Is(err, ErrClosed) {
		t.Errorf("expected closed queue to reject, got %d %v", n, err)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, pair("a", "b")) {
		t.Error("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, pair("a", "b")) {
		t.Error("expected enqueue to fail after closing")
	}

	// buffered pairs still drain before the channel closes
	out := q.Dequeue(ctx)
	drained := 0
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				if drained != 1 {
					t.Errorf("expected 1 drained pair, got %d", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
