package turn

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Push(Utterance{Text: fmt.Sprintf("u%d", i)})
	}
	if q.Len() != 5 {
		t.Fatalf("Expected 5 queued, got %d", q.Len())
	}

	for i := 0; i < 5; i++ {
		u, ok := q.TryPop()
		if !ok {
			t.Fatalf("Expected item %d", i)
		}
		if want := fmt.Sprintf("u%d", i); u.Text != want {
			t.Errorf("Expected %s, got %s", want, u.Text)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	_, ok := q.Pop(context.Background(), 50*time.Millisecond)
	if ok {
		t.Error("Expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Pop returned too early: %v", elapsed)
	}
}

func TestQueue_PopWakesOnPush(t *testing.T) {
	q := NewQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(Utterance{Text: "hello there"})
	}()

	u, ok := q.Pop(context.Background(), time.Second)
	if !ok || u.Text != "hello there" {
		t.Errorf("Expected pushed utterance, got %+v ok=%v", u, ok)
	}
}

func TestQueue_PopContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := q.Pop(ctx, time.Second); ok {
		t.Error("Expected no item from a cancelled pop")
	}
}

// Order produced by one listener is the order consumed by the loop.
func TestQueue_ConcurrentOrdering(t *testing.T) {
	q := NewQueue()
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(Utterance{Text: fmt.Sprint(i)})
		}
	}()

	got := make([]string, 0, n)
	for len(got) < n {
		u, ok := q.Pop(context.Background(), time.Second)
		if !ok {
			t.Fatalf("Timed out after %d items", len(got))
		}
		got = append(got, u.Text)
	}
	wg.Wait()

	for i, text := range got {
		if text != fmt.Sprint(i) {
			t.Fatalf("Out of order at %d: %s", i, text)
		}
	}
}
