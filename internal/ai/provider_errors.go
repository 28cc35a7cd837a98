// provider_errors.go - Classification of provider failures

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/api/googleapi"

	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
)

// Failure categories.
const (
	CategoryBadRequest      = "bad_request"
	CategoryUnauthorized    = "unauthorized"
	CategoryForbidden       = "forbidden"
	CategoryNotFound        = "not_found"
	CategoryPayloadTooLarge = "payload_too_large"
	CategoryRateLimit       = "rate_limit"
	CategoryServerError     = "server_error"
	CategoryTimeout         = "timeout"
	CategoryCanceled        = "canceled"
	CategoryNetwork         = "network_error"
	CategoryEmptyResponse   = "empty_response"
	CategoryNotConfigured   = "not_configured"
	CategoryCircuitOpen     = "circuit_open"
	CategoryUnknown         = "unknown"
)

// ProviderError represents a categorized provider failure
type ProviderError struct {
	Provider   string `json:"provider"`
	Category   string `json:"category"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	Err        error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: [%s] %s (status: %d)", e.Provider, e.Category, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusError is a non-success HTTP response carrying the upstream message.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

var errEmptyResponse = errors.New("empty response from provider")

func errNotConfigured(provider, what string) error {
	return apperrors.New(apperrors.ErrProviderNotConfigured.Code,
		fmt.Sprintf("%s provider is not configured: %s", provider, what))
}

// Classify analyzes err and wraps it as a *ProviderError for provider.
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	out := &ProviderError{
		Provider: provider,
		Category: CategoryUnknown,
		Message:  err.Error(),
		Err:      err,
	}

	var (
		statusErr *StatusError
		apiErr    *googleapi.Error
		sdkErr    *anthropic.Error
		netErr    net.Error
	)
	switch {
	case errors.Is(err, apperrors.ErrProviderNotConfigured):
		out.Category = CategoryNotConfigured
	case errors.Is(err, errEmptyResponse):
		out.Category = CategoryEmptyResponse
		out.Retryable = true
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		out.Category = CategoryCircuitOpen
		out.Message = "circuit breaker open: " + err.Error()
		out.Retryable = true
	case errors.Is(err, context.DeadlineExceeded):
		out.Category = CategoryTimeout
		out.Retryable = true
	case errors.Is(err, context.Canceled):
		out.Category = CategoryCanceled
	case errors.As(err, &statusErr):
		out.StatusCode = statusErr.StatusCode
		out.Message = statusErr.Message
		categorizeStatus(out)
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.Code
		if apiErr.Message != "" {
			out.Message = apiErr.Message
		}
		categorizeStatus(out)
	case errors.As(err, &sdkErr):
		out.StatusCode = sdkErr.StatusCode
		if msg := sdkErrorMessage(sdkErr); msg != "" {
			out.Message = msg
		}
		categorizeStatus(out)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			out.Category = CategoryTimeout
		} else {
			out.Category = CategoryNetwork
		}
		out.Retryable = true
	default:
		categorizeMessage(out)
	}
	return out
}

// sdkErrorMessage returns error.message from the body of an SDK error.
func sdkErrorMessage(err *anthropic.Error) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(err.RawJSON()), &body) != nil {
		return ""
	}
	return body.Error.Message
}

func categorizeStatus(e *ProviderError) {
	switch code := e.StatusCode; {
	case code == 400:
		e.Category = CategoryBadRequest
	case code == 401:
		e.Category = CategoryUnauthorized
	case code == 403:
		e.Category = CategoryForbidden
	case code == 404:
		e.Category = CategoryNotFound
	case code == 413:
		e.Category = CategoryPayloadTooLarge
	case code == 429:
		e.Category = CategoryRateLimit
		e.Retryable = true
	case code >= 500:
		// Anthropic reports overload as 529.
		e.Category = CategoryServerError
		e.Retryable = true
	default:
		e.Category = CategoryUnknown
	}
}

func categorizeMessage(e *ProviderError) {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "throttl"):
		e.Category = CategoryRateLimit
		e.Retryable = true
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		e.Category = CategoryTimeout
		e.Retryable = true
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		e.Category = CategoryNetwork
		e.Retryable = true
	case strings.Contains(msg, "credential") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "access denied"):
		e.Category = CategoryUnauthorized
	}
}
