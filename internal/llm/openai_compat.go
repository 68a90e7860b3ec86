package llm

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/oaiclient"
)

// OpenAICompatClient talks to any OpenAI-compatible chat endpoint. The
// default base URL is Groq's.
type OpenAICompatClient struct {
	client *openai.Client
}

// NewOpenAICompatClient creates a chat client from the service configuration.
func NewOpenAICompatClient(cfg *config.Config, httpClient *http.Client) *OpenAICompatClient {
	return &OpenAICompatClient{
		client: oaiclient.New(cfg.ChatBaseURL, cfg.ChatAPIKey, httpClient),
	}
}

// Complete sends messages to model and returns the first choice's content.
func (c *OpenAICompatClient) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", oaiclient.Wrap("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

// Ping lists models, which validates both reachability and the API key.
func (c *OpenAICompatClient) Ping(ctx context.Context) error {
	_, err := c.client.ListModels(ctx)
	return oaiclient.Wrap("chat service", err)
}
