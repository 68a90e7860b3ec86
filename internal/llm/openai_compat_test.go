package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/resilience"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newClient(t *testing.T, handler http.HandlerFunc) *OpenAICompatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{ChatBaseURL: srv.URL + "/openai/v1", ChatAPIKey: "gsk_test"}
	return NewOpenAICompatClient(cfg, srv.Client())
}

func TestOpenAICompatClient_Complete(t *testing.T) {
	var got chatRequest
	var gotAuth string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[
			{"index":0,"message":{"role":"assistant","content":"It is sunny."},"finish_reason":"stop"},
			{"index":1,"message":{"role":"assistant","content":"second"},"finish_reason":"stop"}]}`))
	})

	reply, err := client.Complete(context.Background(), "llama3-70b-8192", []Message{
		{Role: RoleUser, Content: "What is the weather?"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if reply != "It is sunny." {
		t.Errorf("Expected first choice content, got %q", reply)
	}
	if gotAuth != "Bearer gsk_test" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
	if got.Model != "llama3-70b-8192" {
		t.Errorf("Expected model llama3-70b-8192, got %q", got.Model)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "What is the weather?" {
		t.Errorf("Unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAICompatClient_NoChoices(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})

	_, err := client.Complete(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrNoChoices) {
		t.Errorf("Expected ErrNoChoices, got %v", err)
	}
}

func TestOpenAICompatClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"quota", http.StatusTooManyRequests, true},
		{"upstream down", http.StatusBadGateway, true},
		{"bad key", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"failure","type":"api_error"}}`))
			})

			_, err := client.Complete(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}})
			if err == nil {
				t.Fatal("Expected error")
			}
			if resilience.IsRetryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v, got error %v", tt.retryable, err)
			}
		})
	}
}

func TestOpenAICompatClient_Ping(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/models" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}
}
