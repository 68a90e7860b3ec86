package stt

import (
	"context"
	"errors"
)

// ErrEmptyTranscript is returned when the backend answers without any text.
var ErrEmptyTranscript = errors.New("speech recognition returned no text")

// Transcriber turns a whole audio file into text.
//
// Implementations are constructed once at startup and shared by every
// request; Transcribe must be safe for concurrent use.
type Transcriber interface {
	// Transcribe recognizes the audio file at path using the backend's
	// default language detection.
	Transcribe(ctx context.Context, path string) (string, error)

	// Ping reports whether the backend is ready to serve.
	Ping(ctx context.Context) error

	// Name identifies the backend in logs and metrics.
	Name() string
}
