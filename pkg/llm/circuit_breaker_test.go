package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state to be CircuitClosed, got %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected initial consecutive failures to be 0, got %d", cb.ConsecutiveFailures())
	}

	allowed, err := cb.Allow()
	if !allowed {
		t.Errorf("expected Allow() to return true for closed circuit")
	}
	if err != nil {
		t.Errorf("expected no error for closed circuit, got %v", err)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: 30 * time.Second})

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected state to be CircuitOpen after 3 failures, got %v", cb.State())
	}

	allowed, err := cb.Allow()
	if allowed {
		t.Errorf("expected Allow() to return false for open circuit")
	}
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("expected circuit breaker open error, got: %v", err)
	}
}

func TestCircuitBreaker_DoesNotTripBeforeThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second})

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitClosed {
		t.Errorf("expected state to be CircuitClosed below threshold, got %v", cb.State())
	}
	if allowed, err := cb.Allow(); !allowed || err != nil {
		t.Errorf("expected Allow() to pass below threshold, got allowed=%v err=%v", allowed, err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected consecutive failures to reset to 0, got %d", cb.ConsecutiveFailures())
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected state to be CircuitClosed after success, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: 50 * time.Millisecond})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %v", cb.State())
	}

	time.Sleep(60 * time.Millisecond)

	// The first request after the reset window is the test request.
	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Fatalf("expected test request to pass after reset window, got allowed=%v err=%v", allowed, err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open state during the test request, got %v", cb.State())
	}

	// Concurrent requests are rejected while the test is in flight.
	if allowed, _ := cb.Allow(); allowed {
		t.Errorf("expected additional requests to be rejected in half-open state")
	}
}

func TestCircuitBreaker_HalfOpenOutcomes(t *testing.T) {
	trip := func() *CircuitBreaker {
		cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
		cb.RecordFailure()
		time.Sleep(5 * time.Millisecond)
		cb.Allow() // enter half-open
		return cb
	}

	recovered := trip()
	recovered.RecordSuccess()
	if recovered.State() != CircuitClosed {
		t.Errorf("expected success in half-open to close the circuit, got %v", recovered.State())
	}

	stillDown := trip()
	stillDown.RecordFailure()
	if stillDown.State() != CircuitOpen {
		t.Errorf("expected failure in half-open to reopen the circuit, got %v", stillDown.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("expected %q for state %d, got %q", want, state, got)
		}
	}
}

func TestBreakerClient_GenerateResponse(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "SELECT 1", nil
	}
	client := NewBreakerClient(mock, DefaultCircuitBreakerConfig())

	resp, err := client.GenerateResponse(context.Background(), "p", "s", 0.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "SELECT 1" {
		t.Errorf("expected response to pass through, got %q", resp)
	}
}

func TestBreakerClient_TripsAndBlocks(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", errors.New("connection refused")
	}
	client := NewBreakerClient(mock, CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := client.GenerateResponse(context.Background(), "p", "s", 0.0); err == nil {
			t.Fatalf("expected failure on call %d", i+1)
		}
	}

	// The circuit is now open; the inner client is no longer consulted.
	callsBefore := mock.GenerateResponseCalls
	_, err := client.GenerateResponse(context.Background(), "p", "s", 0.0)
	if err == nil {
		t.Fatal("expected error from open circuit")
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) || llmErr.Type != ErrorTypeEndpoint {
		t.Errorf("expected endpoint-typed error from open circuit, got %v", err)
	}
	if mock.GenerateResponseCalls != callsBefore {
		t.Errorf("expected inner client to be skipped while circuit is open")
	}
}

func TestBreakerClient_EmbeddingsBypassBreaker(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", errors.New("down")
	}
	mock.CreateEmbeddingFunc = func(ctx context.Context, input, model string) ([]float32, error) {
		return []float32{0.1}, nil
	}
	client := NewBreakerClient(mock, CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})

	client.GenerateResponse(context.Background(), "p", "s", 0.0) // trips the circuit

	if _, err := client.CreateEmbedding(context.Background(), "text", "model"); err != nil {
		t.Errorf("expected embeddings to bypass the open circuit, got %v", err)
	}
}
