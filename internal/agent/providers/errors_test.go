package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"nil", nil, FailureUnknown},
		{"timeout", errors.New("context deadline exceeded"), FailureTimeout},
		{"rate limit", errors.New("429 too many requests"), FailureRateLimit},
		{"auth", errors.New("401 unauthorized"), FailureAuth},
		{"billing", errors.New("insufficient quota"), FailureBilling},
		{"model", errors.New("model not found: gpt-7"), FailureModelUnavailable},
		{"model unavailable", errors.New("the model is unavailable in this region"), FailureModelUnavailable},
		{"server", errors.New("502 bad gateway"), FailureServerError},
		{"service unavailable", errors.New("503 service unavailable"), FailureServerError},
		{"unknown", errors.New("something odd"), FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailureReasonIsRetryable(t *testing.T) {
	retryable := []FailureReason{FailureRateLimit, FailureTimeout, FailureServerError}
	for _, reason := range retryable {
		if !reason.IsRetryable() {
			t.Errorf("%s should be retryable", reason)
		}
	}
	notRetryable := []FailureReason{FailureAuth, FailureBilling, FailureInvalidRequest, FailureModelUnavailable, FailureUnknown}
	for _, reason := range notRetryable {
		if reason.IsRetryable() {
			t.Errorf("%s should not be retryable", reason)
		}
	}
}

func TestProviderErrorFormatting(t *testing.T) {
	err := NewProviderError("anthropic", "claude-sonnet-4-20250514", errors.New("429 too many requests")).
		WithStatus(429).
		WithRequestID("req_123")

	msg := err.Error()
	for _, want := range []string{"[rate_limit]", "anthropic", "model=claude-sonnet-4-20250514", "status=429"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("request failed: %w", NewProviderError("openai", "gpt-4o", cause))

	providerErr, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatal("GetProviderError failed on wrapped chain")
	}
	if !errors.Is(providerErr, providerErr) || !errors.Is(wrapped, cause) {
		t.Error("error chain broken")
	}
}

func TestIsRetryableOnRawAndWrapped(t *testing.T) {
	if !IsRetryable(errors.New("503 service unavailable")) {
		t.Error("raw 503 should be retryable")
	}
	if IsRetryable(NewProviderError("openai", "gpt-4o", errors.New("invalid api key"))) {
		t.Error("auth failure should not be retryable")
	}
}

func TestWithCodeReclassifies(t *testing.T) {
	err := NewProviderError("anthropic", "", errors.New("opaque")).WithCode("overloaded_error")
	if err.Reason != FailureServerError {
		t.Errorf("Reason = %s, want %s", err.Reason, FailureServerError)
	}
}
