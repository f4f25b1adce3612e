package stt

import (
	"context"
	"errors"
)

var (
	ErrClosed         = errors.New("stt: stream closed")
	ErrUnknownBackend = errors.New("stt: unknown recognizer backend")
)

// Config is the first record of every request stream.
type Config struct {
	Encoding       string
	SampleRate     int
	Language       string
	Punctuation    bool
	InterimResults bool
}

// Request carries either the configuration or one audio fragment, never both.
type Request struct {
	Config *Config
	Audio  []byte
}

func ConfigRequest(c Config) Request {
	return Request{Config: &c}
}

func AudioRequest(data []byte) Request {
	return Request{Audio: data}
}

func (r Request) IsConfig() bool {
	return r.Config != nil
}

type Response struct {
	Transcript string
	IsFinal    bool
	Stability  float32
}

// Stream is one open bidirectional recognition call. Send and CloseSend
// are called from one goroutine, Recv from another. Recv returns io.EOF
// when the service ends the response stream. Close releases the handle
// and unblocks a pending Recv; it may be called more than once.
type Stream interface {
	Send(req Request) error
	CloseSend() error
	Recv() (Response, error)
	Close() error
}

type Recognizer interface {
	Open(ctx context.Context) (Stream, error)
}
