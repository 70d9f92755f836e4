package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Reason classifies a provider failure for retry decisions and metrics.
type Reason string

const (
	ReasonRateLimit      Reason = "rate_limit"
	ReasonAuth           Reason = "auth"
	ReasonTimeout        Reason = "timeout"
	ReasonServerError    Reason = "server_error"
	ReasonInvalidRequest Reason = "invalid_request"
	ReasonModelNotFound  Reason = "model_not_found"
	ReasonUnknown        Reason = "unknown"
)

// IsRetryable reports whether a failure with this reason is worth
// retrying against the same provider.
func (r Reason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError wraps an upstream failure with the provider and model
// that produced it.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Reason   Reason
	Cause    error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason), e.Provider}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError classifies cause and attaches provider/model context.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Reason:   Classify(cause),
		Cause:    cause,
	}
}

// WithStatus records the HTTP status and reclassifies from it, since
// status codes are more reliable than message text.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatus(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// Classify maps an error onto a Reason by inspecting its message.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "throttlingexception"),
		strings.Contains(msg, "toomanyrequestsexception"),
		strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid_api_key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return ReasonAuth
	case strings.Contains(msg, "model not found"),
		strings.Contains(msg, "model_not_found"),
		strings.Contains(msg, "does not exist"):
		return ReasonModelNotFound
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "serviceunavailableexception"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status == http.StatusNotFound:
		return ReasonModelNotFound
	case status == http.StatusRequestTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether err should be retried against the same
// provider. Structured provider errors use their classified reason; raw
// errors are classified on the spot.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Reason.IsRetryable()
	}
	return Classify(err).IsRetryable()
}
