// Package providers implements LLM provider adapters for the turn loop.
//
// Each adapter converts between the transcript message model and one
// vendor API, makes a single non-streaming request per call, and maps
// vendor failures onto the shared error codes. Adapters never retry;
// the orchestrator surfaces provider failures to the caller as-is.
package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/strandlabs/loom/internal/errdefs"
)

// classifyStatus maps an HTTP status from a provider API onto an error
// code.
func classifyStatus(status int) errdefs.Code {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errdefs.CodeProviderAuthFailed
	case status == http.StatusTooManyRequests:
		return errdefs.CodeProviderRateLimit
	case status == http.StatusNotFound:
		return errdefs.CodeLLMModelNotFound
	default:
		return errdefs.CodeLLMAPIError
	}
}

// classifyMessage refines a code using the provider's error text; some
// conditions only show up in the message body.
func classifyMessage(code errdefs.Code, message string) errdefs.Code {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "context length") ||
		strings.Contains(lower, "context_length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "maximum context"):
		return errdefs.CodeLLMContextTooLong
	case strings.Contains(lower, "model not found") ||
		strings.Contains(lower, "model_not_found") ||
		strings.Contains(lower, "does not exist"):
		return errdefs.CodeLLMModelNotFound
	case strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid x-api-key") ||
		strings.Contains(lower, "authentication"):
		return errdefs.CodeProviderAuthFailed
	case strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests"):
		return errdefs.CodeProviderRateLimit
	}
	return code
}

// wrapTransportError classifies non-API failures: cancelled contexts
// pass through, network problems become NETWORK_ERROR, anything else
// LLM_API_ERROR.
func wrapTransportError(provider, model string, err error) *errdefs.Error {
	code := errdefs.CodeLLMAPIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		code = errdefs.CodeNetworkError
	case errors.As(err, &netErr):
		code = errdefs.CodeNetworkError
	case strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "no such host"):
		code = errdefs.CodeNetworkError
	default:
		code = classifyMessage(code, err.Error())
	}
	return errdefs.Wrap(code, provider+" request failed", err).
		WithContext("provider", provider).
		WithContext("model", model)
}

// newAPIError builds the structured error for a provider API failure.
func newAPIError(provider, model string, status int, message string, cause error) *errdefs.Error {
	code := classifyMessage(classifyStatus(status), message)
	if message == "" && cause != nil {
		message = cause.Error()
	}
	e := errdefs.New(code, message)
	e.Cause = cause
	return e.
		WithContext("provider", provider).
		WithContext("model", model).
		WithContext("status", status)
}
