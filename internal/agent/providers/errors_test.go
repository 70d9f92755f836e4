package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Reason
	}{
		{"rate limit exceeded", ReasonRateLimit},
		{"429 Too Many Requests", ReasonRateLimit},
		{"ThrottlingException: slow down", ReasonRateLimit},
		{"context deadline exceeded", ReasonTimeout},
		{"request timeout", ReasonTimeout},
		{"401 unauthorized", ReasonAuth},
		{"invalid api key provided", ReasonAuth},
		{"model not found", ReasonModelNotFound},
		{"internal server error", ReasonServerError},
		{"503 service unavailable", ReasonServerError},
		{"overloaded_error: try again", ReasonServerError},
		{"something odd happened", ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := Classify(errors.New(tt.msg)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}

	if got := Classify(nil); got != ReasonUnknown {
		t.Errorf("Classify(nil) = %v, want unknown", got)
	}
}

func TestWithStatusReclassifies(t *testing.T) {
	tests := []struct {
		status    int
		want      Reason
		retryable bool
	}{
		{429, ReasonRateLimit, true},
		{401, ReasonAuth, false},
		{403, ReasonAuth, false},
		{400, ReasonInvalidRequest, false},
		{404, ReasonModelNotFound, false},
		{500, ReasonServerError, true},
		{503, ReasonServerError, true},
	}

	for _, tt := range tests {
		err := NewProviderError("openai", "gpt-4o", errors.New("opaque upstream failure")).WithStatus(tt.status)
		if err.Reason != tt.want {
			t.Errorf("WithStatus(%d) reason = %v, want %v", tt.status, err.Reason, tt.want)
		}
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("IsRetryable(status %d) = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestIsRetryableUnwrapsProviderError(t *testing.T) {
	inner := NewProviderError("anthropic", "claude-3", errors.New("rate limit"))
	wrapped := fmt.Errorf("chat: %w", inner)
	if !IsRetryable(wrapped) {
		t.Error("IsRetryable() did not find wrapped ProviderError")
	}

	if IsRetryable(errors.New("invalid request body")) {
		t.Error("IsRetryable() retried an unclassified error")
	}
}

func TestProviderErrorFormat(t *testing.T) {
	err := NewProviderError("bedrock", "bedrock/claude", errors.New("boom")).WithStatus(502)
	msg := err.Error()
	for _, part := range []string{"[server_error]", "bedrock", "model=bedrock/claude", "status=502", "boom"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}
}
