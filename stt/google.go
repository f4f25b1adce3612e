package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GoogleClient struct {
	client *speech.Client
	logger *log.Logger
}

func NewGoogleClient(
	ctx context.Context,
	credentialsFile string,
	logger *log.Logger,
) (*GoogleClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleClient{client: client, logger: logger}, nil
}

func (c *GoogleClient) Open(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	call, err := c.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open streaming recognize: %w", err)
	}

	c.logger.Debug("open", "kind", "google")

	return &googleStream{call: call, cancel: cancel}, nil
}

func (c *GoogleClient) Close() error {
	return c.client.Close()
}

type googleStream struct {
	call    speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	pending []Response

	mu     sync.Mutex
	closed bool
}

func (s *googleStream) Send(req Request) error {
	if req.IsConfig() {
		cfg, err := googleStreamingConfig(*req.Config)
		if err != nil {
			return err
		}
		return s.call.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: cfg,
			},
		})
	}

	return s.call.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: req.Audio,
		},
	})
}

func (s *googleStream) CloseSend() error {
	return s.call.CloseSend()
}

func (s *googleStream) Recv() (Response, error) {
	for len(s.pending) == 0 {
		resp, err := s.call.Recv()
		if err == io.EOF {
			return Response{}, io.EOF
		}
		if err != nil {
			if status.Code(err) == codes.Canceled && s.isClosed() {
				return Response{}, ErrClosed
			}
			return Response{}, fmt.Errorf("failed to receive recognition: %w", err)
		}

		if e := resp.GetError(); e != nil && e.GetCode() != int32(codes.OK) {
			return Response{}, fmt.Errorf(
				"recognition error %d: %s",
				e.GetCode(),
				e.GetMessage(),
			)
		}

		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			s.pending = append(s.pending, Response{
				Transcript: alts[0].GetTranscript(),
				IsFinal:    result.GetIsFinal(),
				Stability:  result.GetStability(),
			})
		}
	}

	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, nil
}

func (s *googleStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	return nil
}

func (s *googleStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errUnknownEncoding = errors.New("stt: unknown audio encoding")

func googleStreamingConfig(c Config) (*speechpb.StreamingRecognitionConfig, error) {
	encoding, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(c.Encoding)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownEncoding, c.Encoding)
	}

	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_AudioEncoding(encoding),
			SampleRateHertz:            int32(c.SampleRate),
			LanguageCode:               c.Language,
			EnableAutomaticPunctuation: c.Punctuation,
		},
		InterimResults: c.InterimResults,
	}, nil
}
