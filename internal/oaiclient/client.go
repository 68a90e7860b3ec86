// Package oaiclient builds go-openai clients for the OpenAI-compatible
// collaborators (local Whisper server, Groq chat, OpenAI speech) and maps
// their errors onto the resilience taxonomy.
package oaiclient

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-reply/internal/resilience"
)

// New returns a client for baseURL. An empty apiKey is allowed for local
// servers that do not authenticate.
func New(baseURL, apiKey string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// StatusCode extracts the HTTP status carried by a go-openai error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Wrap annotates err with op and marks it retryable when the upstream status
// is transient (408, 429, 5xx).
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	if code := StatusCode(err); code != 0 && resilience.IsRetryableStatus(code) {
		return resilience.NewRetryableError(wrapped)
	}
	return wrapped
}
