package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"node.town/shabad/stt"
	"node.town/shabad/verse"
)

type MockChannel struct {
	id string

	mu      sync.Mutex
	Updates []Update
	Verses  []verse.Verse
	Errors  []string
}

func NewMockChannel(id string) *MockChannel {
	return &MockChannel{id: id}
}

func (m *MockChannel) ID() string { return m.id }

func (m *MockChannel) SendUpdate(u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, u)
	return nil
}

func (m *MockChannel) SendVerse(v verse.Verse, isFinal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verses = append(m.Verses, v)
	return nil
}

func (m *MockChannel) SendError(message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, message)
	return nil
}

func (m *MockChannel) counts() (updates, verses, errs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates), len(m.Verses), len(m.Errors)
}

// MockStream records every request. Its response stream ends after
// CloseSend only when EndOnCloseSend is set.
type MockStream struct {
	EndOnCloseSend bool

	mu       sync.Mutex
	Requests []stt.Request

	responses  chan stt.Response
	errs       chan error
	sendClosed chan struct{}
	closed     chan struct{}
	sendOnce   sync.Once
	closeOnce  sync.Once
}

func NewMockStream(endOnCloseSend bool) *MockStream {
	return &MockStream{
		EndOnCloseSend: endOnCloseSend,
		responses:      make(chan stt.Response, 16),
		errs:           make(chan error, 1),
		sendClosed:     make(chan struct{}),
		closed:         make(chan struct{}),
	}
}

func (m *MockStream) Send(req stt.Request) error {
	select {
	case <-m.closed:
		return stt.ErrClosed
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	return nil
}

func (m *MockStream) CloseSend() error {
	m.sendOnce.Do(func() { close(m.sendClosed) })
	return nil
}

func (m *MockStream) Recv() (stt.Response, error) {
	select {
	case r := <-m.responses:
		return r, nil
	default:
	}

	var ended <-chan struct{}
	if m.EndOnCloseSend {
		ended = m.sendClosed
	}

	select {
	case r := <-m.responses:
		return r, nil
	case err := <-m.errs:
		return stt.Response{}, err
	case <-ended:
		return stt.Response{}, io.EOF
	case <-m.closed:
		return stt.Response{}, stt.ErrClosed
	}
}

func (m *MockStream) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MockStream) Respond(r stt.Response) {
	m.responses <- r
}

func (m *MockStream) Fail(err error) {
	m.errs <- err
}

func (m *MockStream) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *MockStream) requests() []stt.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stt.Request(nil), m.Requests...)
}

// MockRecognizer hands out streams built by NewStream, or fails with Err.
// Delay holds each Open back unless ctx ends first.
type MockRecognizer struct {
	Err       error
	Delay     time.Duration
	NewStream func() *MockStream

	mu       sync.Mutex
	Streams  []*MockStream
	attempts int
}

func (m *MockRecognizer) Open(ctx context.Context) (stt.Stream, error) {
	m.mu.Lock()
	m.attempts++
	err := m.Err
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := NewMockStream(true)
	if m.NewStream != nil {
		s = m.NewStream()
	}

	m.mu.Lock()
	m.Streams = append(m.Streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *MockRecognizer) setErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func (m *MockRecognizer) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *MockRecognizer) last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Streams) == 0 {
		return nil
	}
	return m.Streams[len(m.Streams)-1]
}

type MockJournal struct {
	mu          sync.Mutex
	Transcripts []Transcript
	Err         error
}

func (m *MockJournal) Record(ctx context.Context, t Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Transcripts = append(m.Transcripts, t)
	return nil
}

var errUnreachable = errors.New("dial tcp: connection refused")

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testConfig() stt.Config {
	return stt.Config{
		Encoding:       "WEBM_OPUS",
		SampleRate:     48000,
		Language:       "pa-IN",
		Punctuation:    true,
		InterimResults: true,
	}
}

func waitDone(t *testing.T, s *Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatalf("session %s did not terminate within %s (state %s)", s.ID, timeout, s.State())
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}
