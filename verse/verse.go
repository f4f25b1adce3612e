// Package verse looks up the scripture verse matching a transcript.
package verse

import (
	"context"
	"strings"
)

type Verse struct {
	Gurmukhi   string `json:"verse_gurmukhi"`
	Meaning    string `json:"meaning_english"`
	SourcePage string `json:"source_page"`
}

type Finder interface {
	Find(ctx context.Context, text string) (Verse, bool, error)
}

// Placeholder returns the same verse for every non-empty transcript.
type Placeholder struct {
	Source string
}

func (p Placeholder) Find(ctx context.Context, text string) (Verse, bool, error) {
	if err := ctx.Err(); err != nil {
		return Verse{}, false, err
	}
	if strings.TrimSpace(text) == "" {
		return Verse{}, false, nil
	}

	source := p.Source
	if source == "" {
		source = "Stream"
	}

	return Verse{
		Gurmukhi:   "ਸਲੋਕੁ ਮਃ ੩ ॥ (" + source + " Placeholder Verse)",
		Meaning:    "Shalok, Third Mehl (" + source + " Placeholder Meaning)",
		SourcePage: "Ang 644 (" + source + " Placeholder Page)",
	}, true, nil
}
