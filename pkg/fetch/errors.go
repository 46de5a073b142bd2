package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Common errors returned by the fetch unit.
var (
	// ErrRetryExhausted wraps the last attempt error once every attempt failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the caller's context ends mid-fetch.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassStatus represents any other non-200 status.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassTimeout represents per-request timeouts.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents connection, DNS and other transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents payloads the normalizer could not handle.
	ErrorClassDecode ErrorClass = "decode"
)

// StatusError is returned for any response whose status is not 200.
type StatusError struct {
	StatusCode int
	Class      ErrorClass
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Class, e.StatusCode, http.StatusText(e.StatusCode))
}

// DecodeError wraps a normalizer failure.
type DecodeError struct {
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 status to its class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassStatus
	}
}

// Classify categorizes a failed attempt for observability. Every class is
// retried; the class only labels logs and metrics.
func Classify(err error) ErrorClass {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Class
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) || errors.Is(err, ErrBodyTooLarge) {
		return ErrorClassDecode
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	return ErrorClassNetwork
}
