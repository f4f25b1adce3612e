package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"node.town/shabad/queue"
	"node.town/shabad/stt"
)

var (
	ErrClosed       = errors.New("session: closed")
	errDrainTimeout = errors.New("recognizer did not finish within the drain timeout")
)

// Session is one recognizer stream bound to one client connection.
//
// Three goroutines touch a session: the transport reader (Enqueue, Drain),
// the sender pumping the sequencer into the stream, and the relay reading
// responses. The relay alone tears the session down.
type Session struct {
	ID           string
	ConnectionID string
	StartedAt    time.Time

	coord   *Coordinator
	channel Channel
	queue   *queue.Queue
	stream  stt.Stream
	cancel  func()
	log     *log.Logger

	mu     sync.Mutex
	state  State
	cause  error
	forced bool
	timer  *time.Timer

	cleanupOnce sync.Once
	senderDone  chan struct{}
	done        chan struct{}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) alive() bool {
	return s.State() != Terminated
}

// Done is closed once the session has terminated and both of its
// goroutines have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the cause the session ended with, or nil for a clean end.
// It is only meaningful after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) Queued() int {
	return s.queue.Len()
}

func (s *Session) Dropped() int {
	return s.queue.Dropped()
}

// Enqueue appends an audio fragment. It fails with queue.ErrEnded once
// the session is draining and with ErrClosed once it has terminated.
func (s *Session) Enqueue(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Terminated {
		return ErrClosed
	}
	return s.queue.Push(data)
}

// Drain ends the input of the session and arms the drain timer. It
// reports whether this call was the one that ended the input.
func (s *Session) Drain(reason string) bool {
	if !s.queue.End() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Starting || s.state == Active {
		s.state = Draining
	}
	if s.state == Draining && s.timer == nil && s.coord.opts.DrainTimeout > 0 {
		s.timer = time.AfterFunc(s.coord.opts.DrainTimeout, s.expire)
	}

	s.log.Info("draining", "reason", reason, "queued", s.queue.Len())
	return true
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.state == Terminated {
		s.mu.Unlock()
		return
	}
	s.forced = true
	if s.cause == nil {
		s.cause = errDrainTimeout
	}
	s.mu.Unlock()

	s.log.Warn("drain timeout, closing recognizer stream")
	s.coord.metrics.ForcedCleanups.Inc()
	s.stream.Close()
}

// fail records the first fatal cause. Later causes are dropped so the
// client sees one error per session.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause == nil && s.state != Terminated {
		s.cause = err
	}
}

func (s *Session) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause != nil
}

func (s *Session) abort(err error) {
	s.fail(err)
	s.stream.Close()
}

func (s *Session) send(seq *Sequencer) {
	defer s.coord.wg.Done()
	defer close(s.senderDone)

	for {
		req, ok := seq.Next()
		if !ok {
			break
		}

		if err := s.stream.Send(req); err != nil {
			// A stream aborted by the service reports its status on Recv.
			if errors.Is(err, io.EOF) {
				return
			}
			if s.alive() {
				s.abort(fmt.Errorf("failed to send audio: %w", err))
			}
			return
		}
	}

	if !s.alive() {
		return
	}

	if err := s.stream.CloseSend(); err != nil {
		s.abort(fmt.Errorf("failed to close request stream: %w", err))
	}
}

func (s *Session) relay() {
	defer s.coord.wg.Done()

	var err error
	for {
		resp, rerr := s.stream.Recv()
		if rerr != nil {
			err = rerr
			break
		}
		if s.failed() {
			continue
		}
		s.coord.forward(s, resp)
	}

	s.cleanupOnce.Do(func() { s.cleanup(err) })
}

func (s *Session) cleanup(recvErr error) {
	s.mu.Lock()
	s.state = Terminated
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cause == nil && recvErr != nil && !errors.Is(recvErr, io.EOF) {
		s.cause = fmt.Errorf("recognition failed: %w", recvErr)
	}
	cause := s.cause
	forced := s.forced
	s.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		s.log.Warn("failed to close recognizer stream", "error", err)
	}
	s.cancel()

	s.queue.End()
	<-s.senderDone

	s.coord.registry.removeIf(s.ConnectionID, s)

	outcome := "ok"
	switch {
	case forced:
		outcome = "forced"
	case cause != nil:
		outcome = "error"
	}

	if cause != nil {
		s.log.Error("session ended", "error", cause)
		if err := s.channel.SendError(cause.Error()); err != nil {
			s.log.Warn("failed to send error event", "error", err)
		}
	} else {
		s.log.Info("session ended")
	}

	m := s.coord.metrics
	m.ActiveSessions.Dec()
	m.SessionsTerminated.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(time.Since(s.StartedAt).Seconds())

	close(s.done)
}
