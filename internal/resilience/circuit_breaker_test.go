package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}

	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)

	if cb.GetState() != StateClosed {
		t.Error("Expected state to be Closed when failures are not consecutive")
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	time.Sleep(150 * time.Millisecond)

	if !cb.allowRequest() {
		t.Error("Expected to allow request after timeout (HalfOpen)")
	}

	state, _, _, _ := cb.GetStats()
	if state != StateHalfOpen {
		t.Errorf("Expected state to be HalfOpen, got %s", state)
	}
}

func TestCircuitBreaker_HalfOpenLimitsTrialRequests(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 50*time.Millisecond)
	cb.RecordResult(false)

	time.Sleep(80 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if !cb.allowRequest() {
			t.Fatalf("Expected trial request %d to be allowed", i+1)
		}
	}
	if cb.allowRequest() {
		t.Error("Expected fourth half-open request to be rejected")
	}
}

func TestCircuitBreaker_CloseAfterSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	time.Sleep(150 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }, nil); err != nil {
			t.Fatalf("Expected trial call %d to succeed, got %v", i+1, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be Closed after successes in HalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	time.Sleep(150 * time.Millisecond)

	err := cb.Call(func() error { return errors.New("still down") }, nil)
	if err == nil {
		t.Fatal("Expected error from trial call")
	}

	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after failure in HalfOpen")
	}
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	err := cb.Call(func() error {
		return nil
	}, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	err = cb.Call(func() error {
		return errors.New("test error")
	}, nil)
	if err == nil {
		t.Error("Expected error from failed call")
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Second)

	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while circuit is open")
	}
}

func TestCircuitBreaker_OnResult(t *testing.T) {
	cb := NewCircuitBreaker("chat", 1, 1*time.Second)

	var gotName string
	var gotState CircuitState
	gotSuccess := true
	cb.OnResult(func(name string, state CircuitState, success bool) {
		gotName = name
		gotState = state
		gotSuccess = success
	})

	cb.RecordResult(false)

	if gotName != "chat" || gotState != StateOpen || gotSuccess {
		t.Errorf("Expected callback (chat, open, false), got (%s, %s, %v)", gotName, gotState, gotSuccess)
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()

	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}

func TestCircuitBreaker_CallIgnoresNonTransientErrors(t *testing.T) {
	cb := NewCircuitBreaker("stt", 2, time.Minute)
	badInput := errors.New("unsupported audio")

	for i := 0; i < 5; i++ {
		err := cb.Call(func() error { return badInput }, IsTransient)
		if !errors.Is(err, badInput) {
			t.Fatalf("Expected collaborator error, got %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		cb.Call(func() error { return context.Canceled }, IsTransient)
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed, got %s", cb.GetState())
	}
	_, requests, failures, _ := cb.GetStats()
	if requests != 5 || failures != 0 {
		t.Errorf("Expected 5 requests and 0 failures, got %d and %d", requests, failures)
	}

	for i := 0; i < 2; i++ {
		cb.Call(func() error { return NewRetryableError(errors.New("status 503")) }, IsTransient)
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected transient failures to open the circuit, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CanceledCallReleasesHalfOpenSlot(t *testing.T) {
	cb := NewCircuitBreaker("chat", 1, 10*time.Millisecond)
	cb.RecordResult(false)
	time.Sleep(20 * time.Millisecond)

	// Every trial slot is given back after a cancellation
	for i := 0; i < 5; i++ {
		err := cb.Call(func() error { return context.Canceled }, IsTransient)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled on call %d, got %v", i, err)
		}
	}

	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected state HalfOpen, got %s", cb.GetState())
	}
}
