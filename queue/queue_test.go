package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueueOrder(t *testing.T) {
	q := New(0)
	for i := 0; i < 5; i++ {
		if err := q.Push([]byte{byte(i)}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	if !q.End() {
		t.Fatal("End() = false, want true")
	}

	for i := 0; i < 5; i++ {
		item := q.Pop()
		if item.IsEnd() {
			t.Fatalf("Pop() #%d returned end of stream", i)
		}
		if got := item.Data()[0]; got != byte(i) {
			t.Errorf("Pop() #%d = %d, want %d", i, got, i)
		}
	}

	if item := q.Pop(); !item.IsEnd() {
		t.Errorf("Pop() after fragments = %v, want end of stream", item)
	}
}

func TestQueuePushAfterEnd(t *testing.T) {
	q := New(0)
	q.End()

	err := q.Push([]byte("late"))
	if !errors.Is(err, ErrEnded) {
		t.Errorf("Push() after End() = %v, want %v", err, ErrEnded)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (marker only)", q.Len())
	}
}

func TestQueueSingleMarker(t *testing.T) {
	q := New(0)
	if !q.End() {
		t.Fatal("first End() = false, want true")
	}
	if q.End() {
		t.Error("second End() = true, want false")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueEmptyFragmentIsNotEnd(t *testing.T) {
	q := New(0)
	q.Push(nil)
	q.Push([]byte{})

	for i := 0; i < 2; i++ {
		if q.Pop().IsEnd() {
			t.Errorf("Pop() #%d: empty fragment reported as end of stream", i)
		}
	}
}

func TestQueuePopAfterMarkerDoesNotBlock(t *testing.T) {
	q := New(0)
	q.End()
	q.Pop()

	done := make(chan Item)
	go func() { done <- q.Pop() }()

	select {
	case item := <-done:
		if !item.IsEnd() {
			t.Errorf("Pop() = %v, want end of stream", item)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() blocked after end of stream was consumed")
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New(0)
	done := make(chan Item)
	go func() { done <- q.Pop() }()

	select {
	case <-done:
		t.Fatal("Pop() returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push([]byte("x"))

	select {
	case item := <-done:
		if string(item.Data()) != "x" {
			t.Errorf("Pop() = %q, want %q", item.Data(), "x")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake on Push()")
	}
}

func TestQueueEndWakesPop(t *testing.T) {
	q := New(0)
	done := make(chan Item)
	go func() { done <- q.Pop() }()

	time.Sleep(10 * time.Millisecond)
	q.End()

	select {
	case item := <-done:
		if !item.IsEnd() {
			t.Errorf("Pop() = %v, want end of stream", item)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake on End()")
	}
}

func TestQueueDropOldest(t *testing.T) {
	q := New(2)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c"))

	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}

	want := []string{"b", "c"}
	for _, w := range want {
		if got := string(q.Pop().Data()); got != w {
			t.Errorf("Pop() = %q, want %q", got, w)
		}
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const n = 1000
	q := New(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push([]byte(fmt.Sprint(i)))
		}
		q.End()
	}()

	i := 0
	for {
		item := q.Pop()
		if item.IsEnd() {
			break
		}
		if got, want := string(item.Data()), fmt.Sprint(i); got != want {
			t.Fatalf("Pop() = %s, want %s", got, want)
		}
		i++
	}
	wg.Wait()

	if i != n {
		t.Errorf("received %d fragments, want %d", i, n)
	}
}
