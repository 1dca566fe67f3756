package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
)

// mockRetryProvider is a test provider that can simulate failures.
type mockRetryProvider struct {
	failCount      int
	currentAttempt int
	failWith       error
	successResp    *CompletionResponse
}

func (m *mockRetryProvider) Name() string {
	return "test"
}

func (m *mockRetryProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.currentAttempt++

	if m.currentAttempt <= m.failCount {
		return nil, m.failWith
	}

	return m.successResp, nil
}

func newTestWrapper(p Provider, maxRetries int) (*RetryableProviderWrapper, *[]time.Duration) {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.Jitter = 0
	w := NewRetryableProvider(p, cfg)
	var delays []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return w, &delays
}

func TestRetryableProvider_SuccessFirstAttempt(t *testing.T) {
	mock := &mockRetryProvider{successResp: &CompletionResponse{Content: "ok"}}
	w, delays := newTestWrapper(mock, 3)

	resp, err := w.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
	if mock.currentAttempt != 1 || len(*delays) != 0 {
		t.Errorf("attempts = %d, delays = %v", mock.currentAttempt, *delays)
	}
}

func TestRetryableProvider_RetriesRateLimit(t *testing.T) {
	mock := &mockRetryProvider{
		failCount:   2,
		failWith:    &pkgerrors.ProviderError{Provider: "test", StatusCode: http.StatusTooManyRequests, Message: "slow down"},
		successResp: &CompletionResponse{Content: "ok"},
	}
	w, delays := newTestWrapper(mock, 3)

	if _, err := w.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if mock.currentAttempt != 3 {
		t.Errorf("attempts = %d, want 3", mock.currentAttempt)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(*delays) != 2 || (*delays)[0] != want[0] || (*delays)[1] != want[1] {
		t.Errorf("delays = %v, want %v", *delays, want)
	}
}

func TestRetryableProvider_Overloaded(t *testing.T) {
	mock := &mockRetryProvider{
		failCount: 10,
		failWith:  &pkgerrors.ProviderError{Provider: "test", StatusCode: 529, Message: "overloaded"},
	}
	w, _ := newTestWrapper(mock, 2)

	_, err := w.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("error = %v, want ErrMaxRetriesExceeded", err)
	}
	var pe *pkgerrors.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 529 {
		t.Errorf("last error not preserved: %v", err)
	}
	if mock.currentAttempt != 3 {
		t.Errorf("attempts = %d, want 3", mock.currentAttempt)
	}
}

func TestRetryableProvider_NonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unauthorized", &pkgerrors.ProviderError{Provider: "test", StatusCode: http.StatusUnauthorized}},
		{"bad request", &pkgerrors.ProviderError{Provider: "test", StatusCode: http.StatusBadRequest}},
		{"validation", &pkgerrors.ValidationError{Field: "messages", Message: "empty"}},
		{"cancelled", context.Canceled},
		{"plain", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockRetryProvider{failCount: 5, failWith: tt.err}
			w, _ := newTestWrapper(mock, 3)

			_, err := w.Complete(context.Background(), CompletionRequest{})
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			if mock.currentAttempt != 1 {
				t.Errorf("attempts = %d, want 1", mock.currentAttempt)
			}
		})
	}
}

func TestRetryableProvider_ContextCancelledDuringBackoff(t *testing.T) {
	mock := &mockRetryProvider{
		failCount: 5,
		failWith:  &pkgerrors.ProviderError{Provider: "test", StatusCode: http.StatusServiceUnavailable},
	}
	w, _ := newTestWrapper(mock, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Complete(ctx, CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCalculateBackoff_CapsAndJitter(t *testing.T) {
	w := NewRetryableProvider(&mockRetryProvider{}, RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     3 * time.Second,
		Multiplier:   2,
		Jitter:       0.5,
	})

	for attempt := 1; attempt <= 5; attempt++ {
		d := w.calculateBackoff(attempt)
		if d < 500*time.Millisecond || d > 4500*time.Millisecond {
			t.Errorf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
