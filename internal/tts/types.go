package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoText is returned when there is nothing speakable in the input.
var ErrNoText = errors.New("no text to synthesize")

// Synthesizer converts text to MP3 audio.
// Concrete implementations wrap Google Translate TTS or OpenAI speech.
type Synthesizer interface {
	// Synthesize returns the complete MP3 for text spoken in lang (ISO 639-1).
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// StatusError is returned when the TTS endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("tts endpoint returned status %d: %s", e.StatusCode, e.Body)
}
