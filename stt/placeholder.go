package stt

import (
	"context"
	"errors"
	"io"
	"sync"
)

const PlaceholderText = "ਇਕ ਓਅੰਕਾਰ ਸਤਿ ਨਾਮੁ"

var errConfigFirst = errors.New("stt: configuration must be the first request")

// Placeholder stands in for a real recognizer. It emits an interim result
// every Every fragments and one final result after CloseSend.
type Placeholder struct {
	Every int
}

func (p *Placeholder) Open(ctx context.Context) (Stream, error) {
	every := p.Every
	if every <= 0 {
		every = 3
	}

	s := &placeholderStream{
		every:     every,
		responses: make(chan Response, 64),
		done:      make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

type placeholderStream struct {
	every     int
	responses chan Response
	done      chan struct{}
	closeOnce sync.Once

	// touched only by the sending goroutine
	configured bool
	sendClosed bool
	fragments  int
}

func (s *placeholderStream) Send(req Request) error {
	if s.sendClosed {
		return io.ErrClosedPipe
	}

	if req.IsConfig() {
		s.configured = true
		return nil
	}
	if !s.configured {
		return errConfigFirst
	}

	s.fragments++
	if s.fragments%s.every != 0 {
		return nil
	}

	return s.emit(Response{
		Transcript: PlaceholderText,
		Stability:  0.5,
	})
}

func (s *placeholderStream) CloseSend() error {
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true

	if s.fragments > 0 {
		if err := s.emit(Response{
			Transcript: PlaceholderText,
			IsFinal:    true,
			Stability:  1,
		}); err != nil {
			return err
		}
	}

	close(s.responses)
	return nil
}

func (s *placeholderStream) emit(r Response) error {
	select {
	case s.responses <- r:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *placeholderStream) Recv() (Response, error) {
	select {
	case <-s.done:
		return Response{}, ErrClosed
	case r, ok := <-s.responses:
		if !ok {
			return Response{}, io.EOF
		}
		return r, nil
	}
}

func (s *placeholderStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
