package stt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/oaiclient"
)

// WhisperClient transcribes through a locally hosted Whisper model server
// that speaks the OpenAI audio API (whisper.cpp server, speaches,
// faster-whisper-server). The server loads the model once; this client is
// the process-wide handle to it.
type WhisperClient struct {
	client *openai.Client
	model  string
}

// NewWhisperClient creates a client for the server at cfg.WhisperBaseURL.
func NewWhisperClient(cfg *config.Config, httpClient *http.Client) *WhisperClient {
	return &WhisperClient{
		client: oaiclient.New(cfg.WhisperBaseURL, "", httpClient),
		model:  cfg.WhisperModel,
	}
}

// Transcribe uploads the file and returns the recognized text.
func (w *WhisperClient) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", oaiclient.Wrap("whisper transcription", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// Ping checks that the model server answers. Servers without a models
// listing still count as up when they reply with an HTTP status.
func (w *WhisperClient) Ping(ctx context.Context) error {
	_, err := w.client.ListModels(ctx)
	if err == nil {
		return nil
	}
	if code := oaiclient.StatusCode(err); code == http.StatusNotFound || code == http.StatusMethodNotAllowed {
		return nil
	}
	return fmt.Errorf("whisper server not ready: %w", err)
}

func (w *WhisperClient) Name() string { return "whisper" }
