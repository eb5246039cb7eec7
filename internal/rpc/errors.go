package rpc

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the backend refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-200 HTTP status
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed response
	ErrTypeParse
	// ErrTypeServer indicates the backend answered with a JSON-RPC error
	ErrTypeServer
	// ErrTypeAuth indicates the session is not authenticated
	ErrTypeAuth
	// ErrTypeUnavailable indicates the circuit breaker is open
	ErrTypeUnavailable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeServer:
		return "Server Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeUnavailable:
		return "Backend Unavailable"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// ServerErrorData is the structured part of a backend error.
type ServerErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Debug   string `json:"debug,omitempty"`
}

// Error represents an error that occurred while talking to the backend
type Error struct {
	Type       ErrorType
	Message    string
	Route      string
	StatusCode int
	Code       int // JSON-RPC error code
	Data       *ServerErrorData
	Err        error
	Retryable  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Data != nil && e.Data.Message != "" {
		msg = e.Data.Message
	}
	if e.Route != "" {
		msg = e.Route + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the backend's message for the operator, if the
// backend sent one.
func (e *Error) UserMessage() string {
	if e.Data != nil {
		return e.Data.Message
	}
	return ""
}

// ClassifyNetworkError analyzes a transport error and returns a typed Error
func ClassifyNetworkError(err error, route string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Type: ErrTypeTimeout, Message: "request timed out", Route: route, Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:    ErrTypeDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Route:   route,
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &Error{Type: ErrTypeConnectionRefused, Message: "backend refused connection", Route: route, Err: err, Retryable: true}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return &Error{Type: ErrTypeNetwork, Message: "host unreachable", Route: route, Err: err, Retryable: true}
		}
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &Error{Type: ErrTypeNetwork, Message: "network unreachable", Route: route, Err: err, Retryable: true}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, route)
	}

	return &Error{Type: ErrTypeNetwork, Message: "network error occurred", Route: route, Err: err, Retryable: true}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(route string, statusCode int, message string) *Error {
	return &Error{
		Type:       ErrTypeHTTP,
		Message:    message,
		Route:      route,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(route, message string, err error) *Error {
	return &Error{Type: ErrTypeParse, Message: message, Route: route, Err: err}
}

var authErrorNames = map[string]bool{
	"odoo.http.SessionExpiredException": true,
	"odoo.exceptions.AccessDenied":      true,
}

// NewServerError wraps a JSON-RPC error object.
func NewServerError(route string, code int, message string, data *ServerErrorData) *Error {
	t := ErrTypeServer
	if code == 100 || (data != nil && authErrorNames[data.Name]) {
		t = ErrTypeAuth
	}
	return &Error{Type: t, Message: message, Route: route, Code: code, Data: data}
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNetworkError reports whether err is a transport-level failure
func IsNetworkError(err error) bool {
	e, ok := asError(err)
	if !ok {
		return false
	}
	switch e.Type {
	case ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS:
		return true
	}
	return false
}

// IsServerError reports whether the backend rejected the call
func IsServerError(err error) bool {
	e, ok := asError(err)
	return ok && e.Type == ErrTypeServer
}

// IsAuthError reports whether the session must log in again
func IsAuthError(err error) bool {
	e, ok := asError(err)
	return ok && e.Type == ErrTypeAuth
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	e, ok := asError(err)
	return ok && e.Retryable
}

// countsAsFailure decides whether the circuit breaker should count err.
// Backend rejections are answers, not outages.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	e, ok := asError(err)
	if !ok {
		return true
	}
	switch e.Type {
	case ErrTypeServer, ErrTypeAuth, ErrTypeParse:
		return false
	case ErrTypeHTTP:
		return e.StatusCode >= 500
	}
	return true
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	e, ok := asError(err)
	if !ok {
		return err.Error()
	}

	switch e.Type {
	case ErrTypeTimeout:
		return "Server not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Server refused connection - is it running?"
	case ErrTypeDNS:
		return "Cannot resolve server hostname"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeHTTP:
		return fmt.Sprintf("Server error (HTTP %d)", e.StatusCode)
	case ErrTypeParse:
		return "Failed to parse server response"
	case ErrTypeAuth:
		return "Session expired - log in again"
	case ErrTypeUnavailable:
		return "Server unavailable - retrying shortly"
	case ErrTypeServer:
		if msg := e.UserMessage(); msg != "" {
			return msg
		}
		return e.Message
	default:
		return e.Message
	}
}
