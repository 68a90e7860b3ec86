package oaiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lexiqai/voice-reply/internal/resilience"
)

func TestWrap_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"upstream says no","type":"test"}}`))
			}))
			defer srv.Close()

			client := New(srv.URL+"/v1", "key", srv.Client())
			_, err := client.ListModels(context.Background())
			if err == nil {
				t.Fatal("Expected error from upstream")
			}

			if got := StatusCode(err); got != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, got)
			}

			wrapped := Wrap("list models", err)
			if resilience.IsRetryable(wrapped) != tt.retryable {
				t.Errorf("Expected retryable=%v for status %d", tt.retryable, tt.status)
			}
			if !errors.Is(wrapped, err) {
				t.Error("Expected wrapped error to unwrap to the original")
			}
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap("op", nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
