package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrMissingEndpoint is returned when no endpoint URL is configured.
	ErrMissingEndpoint = errors.New("endpoint is required")

	// ErrMissingModel is returned when no model identifier is configured.
	ErrMissingModel = errors.New("model is required")

	// ErrClientClosed is wrapped by requests issued after Close or exhaustion.
	ErrClientClosed = errors.New("client closed")
)

// Placeholder strings returned by Call in place of model output.
const (
	// NotConfiguredMessage is returned on every call while no usable API key is set.
	NotConfiguredMessage = "API key not configured: set api_key or PROMPTGRID_API_KEY"

	// BudgetExhaustedMessage is returned once the failure budget is exhausted.
	BudgetExhaustedMessage = "failure budget exhausted: request not sent"

	// TimeoutMessage is returned when a request exceeds its timeout.
	TimeoutMessage = "request timed out"

	// GenerationFailedPrefix prefixes results of calls that panicked.
	GenerationFailedPrefix = "generation failed"

	apiErrorPrefix      = "API error"
	requestFailedPrefix = "request failed"

	// bodySnippetLimit bounds the response body echoed into API error results.
	bodySnippetLimit = 100
)

// FailurePrefixes lists the prefixes that mark a result as a failure placeholder.
var FailurePrefixes = []string{
	GenerationFailedPrefix,
	apiErrorPrefix,
	requestFailedPrefix,
	TimeoutMessage,
	NotConfiguredMessage,
	BudgetExhaustedMessage,
}

// IsFailure reports whether a result is a failure placeholder rather than model output.
func IsFailure(result string) bool {
	for _, prefix := range FailurePrefixes {
		if strings.HasPrefix(result, prefix) {
			return true
		}
	}
	return false
}

// GenerationFailed formats the placeholder for a call that failed outside the client.
func GenerationFailed(reason any) string {
	return fmt.Sprintf("%s: %v", GenerationFailedPrefix, reason)
}

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx and any other non-2xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTimeout represents a request that hit its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport errors (DNS, connect, reset).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassProtocol represents a 2xx response that could not be decoded.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassCanceled represents a request abandoned by its caller.
	ErrorClassCanceled ErrorClass = "canceled"
)

// ConsumesBudget reports whether failures of this class count against the failure budget.
func (c ErrorClass) ConsumesBudget() bool {
	return c != ErrorClassCanceled
}

// IsHTTP reports whether the class stems from a non-2xx response.
func (c ErrorClass) IsHTTP() bool {
	switch c {
	case ErrorClassClient, ErrorClassServer, ErrorClassRateLimit:
		return true
	default:
		return false
	}
}

// RequestError describes one failed chat completion request.
type RequestError struct {
	Class      ErrorClass
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat %s error (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat %s error (status %d): %s", e.Class, e.StatusCode, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Result renders the error as the placeholder string stored in place of model output.
func (e *RequestError) Result() string {
	switch {
	case e.Class == ErrorClassTimeout:
		return TimeoutMessage
	case e.Class.IsHTTP():
		return fmt.Sprintf("%s (%d): %s", apiErrorPrefix, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", requestFailedPrefix, e.Err)
	default:
		return requestFailedPrefix
	}
}

// classifyStatus maps a non-2xx status code to its error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

// snippet truncates a response body to bodySnippetLimit characters.
func snippet(body []byte) string {
	runes := []rune(string(body))
	if len(runes) > bodySnippetLimit {
		runes = runes[:bodySnippetLimit]
	}
	return string(runes)
}
