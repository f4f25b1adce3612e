package session

import (
	"context"
	"time"

	"node.town/shabad/verse"
)

// Update is one transcript result as sent to the client.
type Update struct {
	Text      string
	IsFinal   bool
	Stability float32
}

// Channel is the outbound half of one client connection. Its methods may
// be called from the response relay goroutine while the transport reads.
type Channel interface {
	ID() string
	SendUpdate(u Update) error
	SendVerse(v verse.Verse, isFinal bool) error
	SendError(message string) error
}

// Transcript is a final result as recorded by a Journal.
type Transcript struct {
	ConnectionID string
	SessionID    string
	Text         string
	Stability    float32
	CreatedAt    time.Time
}

type Journal interface {
	Record(ctx context.Context, t Transcript) error
}
