// Package socket carries audio fragments from browser clients to the
// session coordinator over a websocket, and transcript events back.
package socket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"node.town/shabad/session"
	"node.town/shabad/verse"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var ErrClosed = errors.New("socket: connection closed")

type Coordinator interface {
	Open(ch session.Channel) (*session.Session, error)
	Fragment(ch session.Channel, data []byte) error
	Stop(ch session.Channel, meta map[string]any)
	Close(ch session.Channel)
}

type Handler struct {
	coord    Coordinator
	upgrader websocket.Upgrader
	source   string
	log      *log.Logger
}

// NewHandler accepts websocket connections from the given origins. An
// empty list or "*" accepts any origin.
func NewHandler(coord Coordinator, allowedOrigins []string, logger *log.Logger) *Handler {
	return &Handler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		source: "Stream",
		log:    logger,
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	c := &Conn{
		id:     id,
		ws:     ws,
		source: h.source,
		log:    h.log.With("conn", id),
		done:   make(chan struct{}),
	}

	c.log.Info("open", "remote", r.RemoteAddr)
	c.serve(h.coord)
	c.log.Info("closed")
}

// Conn is one client connection. It implements session.Channel; its send
// methods may be called from any goroutine.
type Conn struct {
	id     string
	ws     *websocket.Conn
	source string
	log    *log.Logger

	writeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) SendUpdate(u session.Update) error {
	return c.writeJSON(transcriptionUpdate{
		Type:      TypeTranscriptionUpdate,
		Text:      u.Text,
		IsFinal:   u.IsFinal,
		Stability: u.Stability,
	})
}

func (c *Conn) SendVerse(v verse.Verse, isFinal bool) error {
	return c.writeJSON(verseUpdate{
		Type:    TypeVerseUpdate,
		Data:    v,
		Source:  c.source,
		IsFinal: isFinal,
	})
}

func (c *Conn) SendError(message string) error {
	return c.writeJSON(errorEvent{
		Type:    TypeError,
		Message: message,
	})
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *Conn) serve(coord Coordinator) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.keepAlive()

	// A failed start has already been reported to the client.
	coord.Open(c)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				c.log.Warn("read failed", "error", err)
			}
			break
		}

		switch mt {
		case websocket.BinaryMessage:
			coord.Fragment(c, data)
		case websocket.TextMessage:
			c.handleText(coord, data)
		}
	}

	coord.Close(c)
}

func (c *Conn) handleText(coord Coordinator, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("ignoring non-audio message", "bytes", len(data))
		return
	}

	switch msg.Type {
	case TypeStart:
		coord.Open(c)
	case TypeStop, TypeClientStopped:
		coord.Stop(c, msg.Data)
	default:
		c.log.Warn("ignoring non-audio message", "type", msg.Type)
	}
}

func (c *Conn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := c.ws.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(writeWait),
			)
			if err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.writeMu.Unlock()

		close(c.done)
		c.ws.Close()
	})
}
