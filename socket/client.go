package socket

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is the sending side of an audio stream, as used by the stream
// command and the tests.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &Client{ws: ws}, nil
}

func (c *Client) SendAudio(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Client) Send(msg ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Client) Stop(meta map[string]any) error {
	return c.Send(ClientMessage{Type: TypeStop, Data: meta})
}

// ReadEvent blocks until the server sends the next event.
func (c *Client) ReadEvent() (Event, error) {
	var e Event
	if err := c.ws.ReadJSON(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()
	return c.ws.Close()
}
