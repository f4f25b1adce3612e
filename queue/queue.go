// Package queue holds the per-session audio fragment queue.
//
// A Queue has exactly two parties: the transport pushing fragments and the
// request sequencer popping them. The end of the stream is a tagged Item,
// never an empty fragment.
package queue

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var ErrEnded = errors.New("queue: end of stream already enqueued")

type Item struct {
	data []byte
	end  bool
}

func Fragment(data []byte) Item {
	return Item{data: data}
}

func EndOfStream() Item {
	return Item{end: true}
}

func (i Item) IsEnd() bool {
	return i.end
}

func (i Item) Data() []byte {
	return i.data
}

// Queue is unbounded unless created with a positive limit, in which case
// the oldest fragment is dropped to make room for a new one.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   *queue.Queue
	limit   int
	ended   bool
	dropped int
}

func New(limit int) *Queue {
	q := &Queue{
		items: queue.New(),
		limit: limit,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a fragment. It returns ErrEnded once End has been called.
func (q *Queue) Push(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended {
		return ErrEnded
	}

	if q.limit > 0 && q.items.Length() >= q.limit {
		q.items.Remove()
		q.dropped++
	}

	q.items.Add(Fragment(data))
	q.cond.Signal()
	return nil
}

// End enqueues the end-of-stream marker. Only the first call has any
// effect; it reports whether this call was the one that ended the queue.
func (q *Queue) End() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended {
		return false
	}

	q.ended = true
	q.items.Add(EndOfStream())
	q.cond.Broadcast()
	return true
}

// Pop blocks until an item is available. Once the marker has been
// consumed every further Pop returns it again instead of blocking.
func (q *Queue) Pop() Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 {
		if q.ended {
			return EndOfStream()
		}
		q.cond.Wait()
	}

	return q.items.Remove().(Item)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
