package session

import (
	"bytes"
	"testing"

	"node.town/shabad/queue"
)

func TestSequencerOrder(t *testing.T) {
	q := queue.New(0)
	fragments := [][]byte{[]byte("a"), []byte("bb"), {}, []byte("ccc")}
	for _, f := range fragments {
		if err := q.Push(f); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	q.End()

	seq := NewSequencer(testConfig(), q, func() bool { return true })

	req, ok := seq.Next()
	if !ok || !req.IsConfig() {
		t.Fatalf("first request = %+v, %v, want configuration", req, ok)
	}
	if *req.Config != testConfig() {
		t.Errorf("config = %+v, want %+v", *req.Config, testConfig())
	}

	for i, want := range fragments {
		req, ok := seq.Next()
		if !ok {
			t.Fatalf("Next() ended after %d fragments, want %d", i, len(fragments))
		}
		if req.IsConfig() {
			t.Fatalf("request %d is a second configuration", i)
		}
		if !bytes.Equal(req.Audio, want) {
			t.Errorf("request %d audio = %q, want %q", i, req.Audio, want)
		}
	}

	for i := 0; i < 2; i++ {
		if req, ok := seq.Next(); ok {
			t.Errorf("Next() after end = %+v, want end", req)
		}
	}
}

func TestSequencerConfigOnEmptyStream(t *testing.T) {
	q := queue.New(0)
	q.End()

	seq := NewSequencer(testConfig(), q, func() bool { return true })

	if req, ok := seq.Next(); !ok || !req.IsConfig() {
		t.Fatalf("first request = %+v, %v, want configuration", req, ok)
	}
	if _, ok := seq.Next(); ok {
		t.Errorf("Next() = ok, want end")
	}
}

func TestSequencerStopsWhenSessionGone(t *testing.T) {
	q := queue.New(0)
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	alive := true
	seq := NewSequencer(testConfig(), q, func() bool { return alive })

	seq.Next()
	if req, ok := seq.Next(); !ok || string(req.Audio) != "a" {
		t.Fatalf("Next() = %+v, %v, want fragment a", req, ok)
	}

	alive = false
	if _, ok := seq.Next(); ok {
		t.Errorf("Next() = ok after session terminated, want end")
	}
	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1 (fragment b left unread)", q.Len())
	}
}
