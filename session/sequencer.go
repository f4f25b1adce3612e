package session

import (
	"node.town/shabad/queue"
	"node.town/shabad/stt"
)

// Sequencer produces the request stream of one session: the configuration,
// then one audio request per fragment until the end-of-stream marker.
// It is not safe for concurrent use.
type Sequencer struct {
	config stt.Config
	queue  *queue.Queue
	alive  func() bool

	started bool
	ended   bool
}

func NewSequencer(config stt.Config, q *queue.Queue, alive func() bool) *Sequencer {
	return &Sequencer{
		config: config,
		queue:  q,
		alive:  alive,
	}
}

// Next blocks until the next request is available. It returns false once
// the stream is over, either because the marker was dequeued or because
// the owning session terminated while it waited.
func (s *Sequencer) Next() (stt.Request, bool) {
	if s.ended {
		return stt.Request{}, false
	}

	if !s.started {
		s.started = true
		return stt.ConfigRequest(s.config), true
	}

	if !s.alive() {
		s.ended = true
		return stt.Request{}, false
	}

	item := s.queue.Pop()
	if item.IsEnd() || !s.alive() {
		s.ended = true
		return stt.Request{}, false
	}

	return stt.AudioRequest(item.Data()), true
}
