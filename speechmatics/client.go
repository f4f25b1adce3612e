package speechmatics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"node.town/shabad/stt"
)

const (
	WebSocketBaseURL = "wss://eu2.rt.speechmatics.com/v2"
	PingInterval     = 30 * time.Second
	PongTimeout      = 60 * time.Second
)

type Client struct {
	APIKey string
	URL    string
	logger *log.Logger
}

func NewClient(apiKey, url string, logger *log.Logger) *Client {
	if url == "" {
		url = WebSocketBaseURL
	}
	return &Client{
		APIKey: apiKey,
		URL:    url,
		logger: logger,
	}
}

type TranscriptionConfig struct {
	Language           string  `json:"language"`
	EnablePartials     bool    `json:"enable_partials,omitempty"`
	MaxDelay           float64 `json:"max_delay,omitempty"`
	PunctuationEnabled bool    `json:"punctuation_enabled,omitempty"`
}

type AudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type StartRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         AudioFormat         `json:"audio_format"`
	TranscriptionConfig TranscriptionConfig `json:"transcription_config"`
}

type EndOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type RTTranscriptResponse struct {
	Message  string `json:"message"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Metadata struct {
		Transcript string  `json:"transcript"`
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
	} `json:"metadata"`
	Results []struct {
		Alternatives []struct {
			Confidence float64 `json:"confidence"`
			Content    string  `json:"content"`
		} `json:"alternatives"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
		Type      string  `json:"type"`
	} `json:"results"`
}

func (r *RTTranscriptResponse) IsPartial() bool {
	return r.Message == "AddPartialTranscript"
}

// Confidence is the mean confidence of the first alternatives, or 0
// when the message carries no results.
func (r *RTTranscriptResponse) Confidence() float32 {
	var sum float64
	var n int
	for _, result := range r.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		sum += result.Alternatives[0].Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return float32(sum / float64(n))
}

// AudioFormatFor maps a recognizer encoding name to the realtime audio
// format: container formats are sent as files, LINEAR16 as raw PCM.
func AudioFormatFor(c stt.Config) AudioFormat {
	switch strings.ToUpper(c.Encoding) {
	case "LINEAR16":
		return AudioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.SampleRate,
		}
	case "MULAW":
		return AudioFormat{
			Type:       "raw",
			Encoding:   "mulaw",
			SampleRate: c.SampleRate,
		}
	default:
		return AudioFormat{Type: "file"}
	}
}

func (c *Client) Open(ctx context.Context) (stt.Stream, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &realtimeStream{
		conn:   conn,
		cancel: cancel,
		logger: c.logger,
	}

	go s.keepAlive(ctx)
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	c.logger.Debug("open", "kind", "speechmatics")

	return s, nil
}

type realtimeStream struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	logger *log.Logger

	// owned by the sending goroutine
	seqNo      int
	sendClosed bool

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (s *realtimeStream) Send(req stt.Request) error {
	if s.sendClosed {
		return io.ErrClosedPipe
	}

	if req.IsConfig() {
		startMsg := StartRecognitionMessage{
			Message:     "StartRecognition",
			AudioFormat: AudioFormatFor(*req.Config),
			TranscriptionConfig: TranscriptionConfig{
				Language:           primaryLanguage(req.Config.Language),
				EnablePartials:     req.Config.InterimResults,
				PunctuationEnabled: req.Config.Punctuation,
			},
		}
		if err := s.conn.WriteJSON(startMsg); err != nil {
			return fmt.Errorf("failed to send StartRecognition message: %w", err)
		}
		return nil
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, req.Audio); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	s.seqNo++
	return nil
}

func (s *realtimeStream) CloseSend() error {
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true

	endMsg := EndOfStreamMessage{
		Message:   "EndOfStream",
		LastSeqNo: s.seqNo,
	}
	if err := s.conn.WriteJSON(endMsg); err != nil {
		return fmt.Errorf("failed to send EndOfStream message: %w", err)
	}
	return nil
}

func (s *realtimeStream) Recv() (stt.Response, error) {
	for {
		var response RTTranscriptResponse
		if err := s.conn.ReadJSON(&response); err != nil {
			if s.isClosed() {
				return stt.Response{}, stt.ErrClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return stt.Response{}, io.EOF
			}
			return stt.Response{}, fmt.Errorf("WebSocket closed unexpectedly: %w", err)
		}

		switch response.Message {
		case "AddPartialTranscript", "AddTranscript":
			r := stt.Response{
				Transcript: response.Metadata.Transcript,
				IsFinal:    true,
				Stability:  1,
			}
			if response.IsPartial() {
				r.IsFinal = false
				r.Stability = response.Confidence()
			}
			return r, nil
		case "EndOfTranscript":
			return stt.Response{}, io.EOF
		case "Error":
			return stt.Response{}, fmt.Errorf(
				"speechmatics error %s: %s",
				response.Type,
				response.Reason,
			)
		case "Warning":
			s.logger.Warn("speechmatics", "type", response.Type, "reason", response.Reason)
		default:
			s.logger.Debug("speechmatics", "message", response.Message)
		}
	}
}

func (s *realtimeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

func (s *realtimeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *realtimeStream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(PongTimeout)); err != nil {
				s.logger.Error("Failed to send ping", "error", err)
				return
			}
		}
	}
}

// primaryLanguage turns a BCP-47 tag like pa-IN into the bare language
// code the realtime API expects.
func primaryLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
