package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"node.town/shabad/config"
	"node.town/shabad/speechmatics"
	"node.town/shabad/stt"
)

// newRecognizer builds the configured backend. The returned function
// releases whatever client the backend holds.
func newRecognizer(
	ctx context.Context,
	cfg config.STT,
	logger *log.Logger,
) (stt.Recognizer, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendPlaceholder:
		return &stt.Placeholder{Every: cfg.PlaceholderEvery}, noop, nil

	case config.BackendGoogle:
		client, err := stt.NewGoogleClient(ctx, cfg.GoogleCredentials, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil

	case config.BackendSpeechmatics:
		client := speechmatics.NewClient(
			cfg.SpeechmaticsAPIKey,
			cfg.SpeechmaticsURL,
			logger,
		)
		return client, noop, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", stt.ErrUnknownBackend, cfg.Backend)
	}
}
