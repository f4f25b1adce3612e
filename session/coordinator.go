// Package session bridges client connections to streaming recognizer
// calls: one session per connection, started on demand, drained on stop
// or disconnect and torn down by its response relay.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"node.town/shabad/metrics"
	"node.town/shabad/queue"
	"node.town/shabad/stt"
	"node.town/shabad/verse"
)

var ErrShutdown = errors.New("session: coordinator shut down")

type Options struct {
	Config       stt.Config
	DrainTimeout time.Duration
	OpenTimeout  time.Duration
	QueueLimit   int
	Shards       int

	// Optional collaborators.
	Finder  verse.Finder
	Journal Journal
	Metrics *metrics.Metrics
}

type Coordinator struct {
	recognizer stt.Recognizer
	opts       Options
	registry   *Registry
	metrics    *metrics.Metrics
	log        *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// last start failure sent to each connection
	failures map[string]string
}

func NewCoordinator(
	recognizer stt.Recognizer,
	opts Options,
	logger *log.Logger,
) *Coordinator {
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		recognizer: recognizer,
		opts:       opts,
		registry:   NewRegistry(opts.Shards),
		metrics:    m,
		log:        logger,
		ctx:        ctx,
		cancel:     cancel,
		failures:   make(map[string]string),
	}
}

// Open starts a session for the connection unless a live one exists, in
// which case that one is returned. A failed start registers nothing and
// is reported to the client with one error event. Repeats of the same
// failure are not reported again until a session starts.
func (c *Coordinator) Open(ch Channel) (*Session, error) {
	s, started, err := c.registry.StartOrGet(ch.ID(), func() (*Session, error) {
		return c.start(ch)
	})
	if err != nil {
		if !errors.Is(err, ErrShutdown) {
			c.metrics.SessionsFailed.Inc()
		}
		if !c.noteFailure(ch.ID(), err) {
			c.log.Debug("session start failed again", "conn", ch.ID(), "error", err)
			return nil, err
		}
		c.log.Error("failed to start session", "conn", ch.ID(), "error", err)
		if serr := ch.SendError(err.Error()); serr != nil {
			c.log.Warn("failed to send error event", "conn", ch.ID(), "error", serr)
		}
		return nil, err
	}
	if started {
		c.forgetFailure(ch.ID())
	}
	return s, nil
}

// noteFailure records err as the connection's last start failure and
// reports whether it differs from the previous one.
func (c *Coordinator) noteFailure(connectionID string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := err.Error()
	if c.failures[connectionID] == msg {
		return false
	}
	c.failures[connectionID] = msg
	return true
}

func (c *Coordinator) forgetFailure(connectionID string) {
	c.mu.Lock()
	delete(c.failures, connectionID)
	c.mu.Unlock()
}

func (c *Coordinator) start(ch Channel) (*Session, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrShutdown
	}

	ctx, cancel := context.WithCancel(c.ctx)

	var timedOut bool
	var timer *time.Timer
	if c.opts.OpenTimeout > 0 {
		timer = time.AfterFunc(c.opts.OpenTimeout, cancel)
	}

	stream, err := c.recognizer.Open(ctx)
	if timer != nil {
		timedOut = !timer.Stop()
	}
	if timedOut {
		if stream != nil {
			stream.Close()
		}
		cancel()
		return nil, fmt.Errorf(
			"failed to open recognizer stream: no answer within %s",
			c.opts.OpenTimeout,
		)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open recognizer stream: %w", err)
	}

	id := uuid.NewString()
	s := &Session{
		ID:           id,
		ConnectionID: ch.ID(),
		StartedAt:    time.Now(),
		coord:        c,
		channel:      ch,
		queue:        queue.New(c.opts.QueueLimit),
		stream:       stream,
		cancel:       cancel,
		log:          c.log.With("conn", ch.ID(), "session", id),
		state:        Starting,
		senderDone:   make(chan struct{}),
		done:         make(chan struct{}),
	}

	seq := NewSequencer(c.opts.Config, s.queue, s.alive)
	config, _ := seq.Next()
	if err := stream.Send(config); err != nil {
		stream.Close()
		cancel()
		return nil, fmt.Errorf("failed to send recognizer configuration: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stream.Close()
		cancel()
		return nil, ErrShutdown
	}
	c.wg.Add(2)
	c.mu.Unlock()

	c.metrics.ActiveSessions.Inc()
	c.metrics.SessionsStarted.Inc()

	s.mu.Lock()
	s.state = Active
	s.mu.Unlock()

	go s.send(seq)
	go s.relay()

	s.log.Info("session started")
	return s, nil
}

// Fragment routes one audio fragment to the connection's session,
// starting one first if there is none. Fragments arriving while the
// session drains are dropped.
func (c *Coordinator) Fragment(ch Channel, data []byte) error {
	c.metrics.FragmentsReceived.Inc()

	s, err := c.Open(ch)
	if err != nil {
		c.metrics.FragmentsDropped.WithLabelValues("start_failed").Inc()
		return err
	}

	if err := s.Enqueue(data); err != nil {
		c.metrics.FragmentsDropped.WithLabelValues("ended").Inc()
		s.log.Debug("dropped fragment", "bytes", len(data), "error", err)
		return nil
	}
	return nil
}

// Stop ends the input of the connection's session on the client's
// request. meta is whatever the client attached to the signal.
func (c *Coordinator) Stop(ch Channel, meta map[string]any) {
	s, ok := c.registry.Get(ch.ID())
	if !ok {
		c.log.Debug("stop without session", "conn", ch.ID())
		return
	}
	if len(meta) > 0 {
		s.log.Info("client stopped recording", "meta", meta)
	}
	s.Drain("stop")
}

// Close is called when the connection is gone. The session still
// finishes its recognizer stream; its results go nowhere.
func (c *Coordinator) Close(ch Channel) {
	c.forgetFailure(ch.ID())

	s, ok := c.registry.Get(ch.ID())
	if !ok {
		return
	}
	s.Drain("disconnect")
}

func (c *Coordinator) Session(connectionID string) (*Session, bool) {
	return c.registry.Get(connectionID)
}

func (c *Coordinator) Len() int {
	return c.registry.Len()
}

type Info struct {
	ConnectionID string    `json:"connection_id"`
	SessionID    string    `json:"session_id"`
	State        string    `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	Queued       int       `json:"queued"`
	Dropped      int       `json:"dropped"`
}

func (c *Coordinator) Snapshot() []Info {
	infos := make([]Info, 0, c.registry.Len())
	c.registry.Range(func(s *Session) {
		infos = append(infos, Info{
			ConnectionID: s.ConnectionID,
			SessionID:    s.ID,
			State:        s.State().String(),
			StartedAt:    s.StartedAt,
			Queued:       s.Queued(),
			Dropped:      s.Dropped(),
		})
	})

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Shutdown refuses new sessions, drains the existing ones and waits for
// them to finish. When ctx ends first the remaining streams are closed.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	defer c.cancel()

	c.registry.Range(func(s *Session) {
		s.Drain("shutdown")
	})

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.registry.Range(func(s *Session) {
			s.abort(ErrShutdown)
		})
		c.cancel()
		<-done
		return ctx.Err()
	}
}

func (c *Coordinator) forward(s *Session, resp stt.Response) {
	finality := "interim"
	if resp.IsFinal {
		finality = "final"
	}
	c.metrics.ResponsesRelayed.WithLabelValues(finality).Inc()

	err := s.channel.SendUpdate(Update{
		Text:      resp.Transcript,
		IsFinal:   resp.IsFinal,
		Stability: resp.Stability,
	})
	if err != nil {
		s.log.Debug("failed to send update", "error", err)
	}

	if !resp.IsFinal {
		return
	}

	if c.opts.Journal != nil {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		err := c.opts.Journal.Record(ctx, Transcript{
			ConnectionID: s.ConnectionID,
			SessionID:    s.ID,
			Text:         resp.Transcript,
			Stability:    resp.Stability,
			CreatedAt:    time.Now(),
		})
		cancel()
		if err != nil {
			s.log.Error("failed to record transcript", "error", err)
		}
	}

	if c.opts.Finder != nil {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		v, ok, err := c.opts.Finder.Find(ctx, resp.Transcript)
		cancel()
		switch {
		case err != nil:
			s.log.Warn("verse lookup failed", "error", err)
		case ok:
			if err := s.channel.SendVerse(v, true); err != nil {
				s.log.Debug("failed to send verse", "error", err)
			}
		}
	}
}
