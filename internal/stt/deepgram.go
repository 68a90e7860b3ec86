package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/resilience"
)

// DeepgramClient transcribes with Deepgram's prerecorded REST API.
type DeepgramClient struct {
	apiKey  string
	dg      *api.Client
	options *interfaces.PreRecordedTranscriptionOptions
}

// NewDeepgramClient creates a new Deepgram prerecorded client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	return newDeepgramClient(cfg, &interfaces.ClientOptions{})
}

func newDeepgramClient(cfg *config.Config, clientOptions *interfaces.ClientOptions) *DeepgramClient {
	d := &DeepgramClient{
		apiKey: cfg.DeepgramAPIKey,
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:       cfg.DeepgramModel,
			Punctuate:   true,
			SmartFormat: true,
		},
	}
	// NewREST returns nil when no credentials are configured
	if rest := listenClient.NewREST(cfg.DeepgramAPIKey, clientOptions); rest != nil {
		d.dg = api.New(rest)
	}
	return d
}

// Transcribe sends the whole file and returns the best alternative of the
// first channel.
func (d *DeepgramClient) Transcribe(ctx context.Context, path string) (string, error) {
	if d.dg == nil {
		return "", fmt.Errorf("deepgram api key is not configured")
	}

	res, err := d.dg.FromFile(ctx, path, d.options)
	if err != nil {
		wrapped := fmt.Errorf("deepgram transcription: %w", err)
		var statusErr *interfaces.StatusError
		if errors.As(err, &statusErr) && statusErr.Resp != nil && resilience.IsRetryableStatus(statusErr.Resp.StatusCode) {
			return "", resilience.NewRetryableError(wrapped)
		}
		return "", wrapped
	}

	if res == nil || res.Results == nil ||
		len(res.Results.Channels) == 0 ||
		len(res.Results.Channels[0].Alternatives) == 0 {
		return "", ErrEmptyTranscript
	}

	text := strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// Ping only validates configuration; a real request would be billed.
func (d *DeepgramClient) Ping(ctx context.Context) error {
	if d.apiKey == "" || d.dg == nil {
		return fmt.Errorf("deepgram api key is not configured")
	}
	return nil
}

func (d *DeepgramClient) Name() string { return "deepgram" }
