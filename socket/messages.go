package socket

import "node.town/shabad/verse"

const (
	TypeStart               = "start"
	TypeStop                = "stop"
	TypeClientStopped       = "client_stopped_recording"
	TypeTranscriptionUpdate = "transcription_update"
	TypeVerseUpdate         = "verse_update"
	TypeError               = "error"
)

// ClientMessage is a text frame sent by the client.
type ClientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type transcriptionUpdate struct {
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	IsFinal   bool    `json:"is_final"`
	Stability float32 `json:"stability"`
}

type verseUpdate struct {
	Type    string      `json:"type"`
	Data    verse.Verse `json:"data"`
	Source  string      `json:"source"`
	IsFinal bool        `json:"is_final"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Event is any server event, as decoded by a client.
type Event struct {
	Type      string       `json:"type"`
	Text      string       `json:"text"`
	IsFinal   bool         `json:"is_final"`
	Stability float32      `json:"stability"`
	Data      *verse.Verse `json:"data"`
	Source    string       `json:"source"`
	Message   string       `json:"message"`
}
