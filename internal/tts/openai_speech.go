package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/oaiclient"
)

// OpenAISpeechClient implements Synthesizer with the OpenAI speech endpoint.
// The voice models detect the language from the text, so lang is not sent.
type OpenAISpeechClient struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAISpeechClient(cfg *config.Config, httpClient *http.Client) *OpenAISpeechClient {
	return &OpenAISpeechClient{
		client: oaiclient.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, httpClient),
		model:  cfg.OpenAITTSModel,
		voice:  cfg.OpenAITTSVoice,
	}
}

func (o *OpenAISpeechClient) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, oaiclient.Wrap("openai speech", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return data, nil
}

func (o *OpenAISpeechClient) Name() string { return "openai" }
