package llm

import (
	"context"
	"errors"
)

// ErrNoChoices is returned when the chat service answers without a completion.
var ErrNoChoices = errors.New("chat completion returned no choices")

// RoleUser marks a message spoken by the user.
const RoleUser = "user"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// ChatCompleter sends a conversation to a chat-completion service and
// returns the content of the first choice.
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)

	// Ping reports whether the service is reachable with the configured key.
	Ping(ctx context.Context) error
}
