package stt

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
)

func TestPlaceholderInterimAndFinal(t *testing.T) {
	p := &Placeholder{Every: 2}
	s, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.Send(ConfigRequest(Config{Encoding: "WEBM_OPUS"})); err != nil {
		t.Fatalf("Send(config) error = %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := s.Send(AudioRequest([]byte{1})); err != nil {
			t.Fatalf("Send(audio) error = %v", err)
		}
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("CloseSend() error = %v", err)
	}

	want := []bool{false, false, true}
	for i, final := range want {
		r, err := s.Recv()
		if err != nil {
			t.Fatalf("Recv() #%d error = %v", i, err)
		}
		if r.IsFinal != final {
			t.Errorf("Recv() #%d IsFinal = %v, want %v", i, r.IsFinal, final)
		}
		if r.Transcript != PlaceholderText {
			t.Errorf("Recv() #%d Transcript = %q, want %q", i, r.Transcript, PlaceholderText)
		}
	}

	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("Recv() at end = %v, want io.EOF", err)
	}
}

func TestPlaceholderRejectsAudioBeforeConfig(t *testing.T) {
	p := &Placeholder{}
	s, _ := p.Open(context.Background())
	defer s.Close()

	if err := s.Send(AudioRequest([]byte{1})); !errors.Is(err, errConfigFirst) {
		t.Errorf("Send(audio) = %v, want %v", err, errConfigFirst)
	}
}

func TestPlaceholderCloseUnblocksRecv(t *testing.T) {
	p := &Placeholder{}
	s, _ := p.Open(context.Background())

	done := make(chan error)
	go func() {
		_, err := s.Recv()
		done <- err
	}()

	s.Close()
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Recv() = %v, want %v", err, ErrClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv() still blocked after Close()")
	}
}

func TestPlaceholderContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Placeholder{}
	s, _ := p.Open(ctx)
	cancel()

	select {
	case <-s.(*placeholderStream).done:
	case <-time.After(time.Second):
		t.Fatal("stream not closed after context cancel")
	}
}

func TestGoogleStreamingConfig(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		encoding speechpb.RecognitionConfig_AudioEncoding
		wantErr  bool
	}{
		{
			name:     "webm opus",
			config:   Config{Encoding: "WEBM_OPUS", SampleRate: 48000, Language: "pa-IN", Punctuation: true, InterimResults: true},
			encoding: speechpb.RecognitionConfig_WEBM_OPUS,
		},
		{
			name:     "lower case linear16",
			config:   Config{Encoding: "linear16", SampleRate: 16000, Language: "en-US"},
			encoding: speechpb.RecognitionConfig_LINEAR16,
		},
		{
			name:    "unknown",
			config:  Config{Encoding: "MP9"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := googleStreamingConfig(tt.config)
			if tt.wantErr {
				if !errors.Is(err, errUnknownEncoding) {
					t.Errorf("googleStreamingConfig() error = %v, want %v", err, errUnknownEncoding)
				}
				return
			}
			if err != nil {
				t.Fatalf("googleStreamingConfig() error = %v", err)
			}
			if got.Config.Encoding != tt.encoding {
				t.Errorf("Encoding = %v, want %v", got.Config.Encoding, tt.encoding)
			}
			if got.Config.SampleRateHertz != int32(tt.config.SampleRate) {
				t.Errorf("SampleRateHertz = %d, want %d", got.Config.SampleRateHertz, tt.config.SampleRate)
			}
			if got.Config.LanguageCode != tt.config.Language {
				t.Errorf("LanguageCode = %q, want %q", got.Config.LanguageCode, tt.config.Language)
			}
			if got.Config.EnableAutomaticPunctuation != tt.config.Punctuation {
				t.Errorf("EnableAutomaticPunctuation = %v, want %v", got.Config.EnableAutomaticPunctuation, tt.config.Punctuation)
			}
			if got.InterimResults != tt.config.InterimResults {
				t.Errorf("InterimResults = %v, want %v", got.InterimResults, tt.config.InterimResults)
			}
		})
	}
}
