package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]("test", Options{})
	for i := range 100 {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if got := q.Len(); got != 100 {
		t.Fatalf("Len() = %d, want 100", got)
	}

	ctx := context.Background()
	for i := range 100 {
		v, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if v != i {
			t.Fatalf("Pop() = %d, want %d", v, i)
		}
	}
	if got := q.HighWater(); got != 100 {
		t.Errorf("HighWater() = %d, want 100", got)
	}
}

func TestQueueDrainsAfterClose(t *testing.T) {
	q := New[string]("test", Options{})
	_ = q.Push("a")
	_ = q.Push("b")
	q.Close()
	q.Close()

	if err := q.Push("c"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Push after Close = %v, want ErrClosed", err)
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		got, err := q.Pop(ctx)
		if err != nil || got != want {
			t.Fatalf("Pop() = %q, %v; want %q", got, err, want)
		}
	}
	if _, err := q.Pop(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Pop on drained queue = %v, want ErrClosed", err)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[int]("test", Options{})
	got := make(chan int, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err != nil {
			t.Errorf("Pop: %v", err)
		}
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	_ = q.Push(7)
	select {
	case v := <-got:
		if v != 7 {
			t.Errorf("Pop() = %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueuePopCancelled(t *testing.T) {
	q := New[int]("test", Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Pop = %v, want deadline exceeded", err)
	}
}

func TestQueueCloseWakesWaiters(t *testing.T) {
	q := New[int]("test", Options{})
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Pop(context.Background()); !errors.Is(err, ErrClosed) {
				t.Errorf("Pop = %v, want ErrClosed", err)
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not released by Close")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New[int]("test", Options{})
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				_ = q.Push(p*perProducer + i)
			}
		}()
	}

	seen := make(map[int]bool)
	ctx := context.Background()
	for range producers * perProducer {
		v, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		seen[v] = true
	}
	wg.Wait()
	if len(seen) != producers*perProducer {
		t.Errorf("received %d distinct items, want %d", len(seen), producers*perProducer)
	}
}

func TestQueueDepthCallback(t *testing.T) {
	var last atomic.Int64
	q := New[int]("test", Options{
		HighWaterMark: 2,
		OnDepth:       func(d int) { last.Store(int64(d)) },
	})
	for i := range 5 {
		_ = q.Push(i)
	}
	if last.Load() != 5 {
		t.Errorf("depth after pushes = %d, want 5", last.Load())
	}
	if !q.warned {
		t.Error("expected high-water warning to be armed")
	}

	ctx := context.Background()
	for range 4 {
		_, _ = q.Pop(ctx)
	}
	if last.Load() != 1 {
		t.Errorf("depth after pops = %d, want 1", last.Load())
	}
	if q.warned {
		t.Error("expected high-water warning to re-arm at half the mark")
	}
}
