// Package core provides shared types and utilities for the SeaTable SDK.
//
// This package contains:
//   - The query result formatting engine (schema indexing, row formatting)
//   - Column type definitions and date rendering
//   - Error types for different HTTP status codes (400, 401, 403, 404, 429, 5xx)
//   - Logging utilities
//
// Error types can be used for type assertions to handle specific error cases:
//
//	rows, err := client.Query(ctx, "SELECT * FROM Table1")
//	if err != nil {
//	    var notFound *core.NotFoundError
//	    if errors.As(err, &notFound) {
//	        // Handle 404
//	    }
//	}
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// SeaTableError is the base error type for all SeaTable SDK errors.
//
// All specific error types (RateLimitError, NotFoundError, etc.) embed this type.
type SeaTableError struct {
	Message     string `json:"message"`
	StatusCode  int    `json:"statusCode"`
	Description string `json:"description,omitempty"`
	Cause       error  `json:"-"`
}

func (e *SeaTableError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s (status: %d)", e.Message, e.Description, e.StatusCode)
	}
	return fmt.Sprintf("%s (status: %d)", e.Message, e.StatusCode)
}

func (e *SeaTableError) Unwrap() error {
	return e.Cause
}

// RateLimitInfo contains information about a rate limit event.
//
// This is passed to the OnRateLimit callback and included in RateLimitError.
// The RetryAfter field indicates how long to wait before retrying (in seconds).
type RateLimitInfo struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestURL string    `json:"requestUrl"`
	HTTPStatus int       `json:"httpStatus"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds
	Limit      int       `json:"limit,omitempty"`
	Remaining  int       `json:"remaining,omitempty"`
	Attempt    int       `json:"attempt"`
}

// RateLimitError is returned when the API returns HTTP 429.
type RateLimitError struct {
	SeaTableError
	RetryAfter    int           `json:"retryAfter,omitempty"`
	RateLimitInfo RateLimitInfo `json:"rateLimitInfo"`
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// NewRateLimitError creates a new RateLimitError from rate limit info.
func NewRateLimitError(info RateLimitInfo, message string) *RateLimitError {
	if message == "" {
		if info.RetryAfter > 0 {
			message = fmt.Sprintf("Rate limited. Retry after %d seconds", info.RetryAfter)
		} else {
			message = "Rate limited"
		}
	}
	return &RateLimitError{
		SeaTableError: SeaTableError{
			Message:    message,
			StatusCode: http.StatusTooManyRequests,
		},
		RetryAfter:    info.RetryAfter,
		RateLimitInfo: info,
	}
}

// RateLimitInfoFromResponse extracts rate limit headers from a response.
func RateLimitInfoFromResponse(resp *http.Response, requestURL string, attempt int) RateLimitInfo {
	info := RateLimitInfo{
		Timestamp:  time.Now(),
		RequestURL: requestURL,
		HTTPStatus: resp.StatusCode,
		Attempt:    attempt,
	}
	info.RetryAfter, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
	info.Limit, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	info.Remaining, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	return info
}

// AuthenticationError is returned when authentication fails (HTTP 401).
type AuthenticationError struct {
	SeaTableError
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{
		SeaTableError: SeaTableError{
			Message:    message,
			StatusCode: http.StatusUnauthorized,
		},
	}
}

// AuthorizationError is returned when authorization fails (HTTP 403).
type AuthorizationError struct {
	SeaTableError
}

// NewAuthorizationError creates a new AuthorizationError.
func NewAuthorizationError(message string) *AuthorizationError {
	return &AuthorizationError{
		SeaTableError: SeaTableError{
			Message:    message,
			StatusCode: http.StatusForbidden,
		},
	}
}

// NotFoundError is returned when a resource is not found (HTTP 404).
type NotFoundError struct {
	SeaTableError
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		SeaTableError: SeaTableError{
			Message:    message,
			StatusCode: http.StatusNotFound,
		},
	}
}

// ValidationError is returned for bad requests (HTTP 400).
type ValidationError struct {
	SeaTableError
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		SeaTableError: SeaTableError{
			Message:    message,
			StatusCode: http.StatusBadRequest,
		},
	}
}

// TimeoutError is returned when a request times out.
type TimeoutError struct {
	SeaTableError
	TimeoutMs int `json:"timeoutMs"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %dms", e.TimeoutMs)
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(timeoutMs int) *TimeoutError {
	return &TimeoutError{
		SeaTableError: SeaTableError{
			Message: fmt.Sprintf("Request timed out after %dms", timeoutMs),
		},
		TimeoutMs: timeoutMs,
	}
}

// ServerError is returned for server errors (HTTP 5xx).
type ServerError struct {
	SeaTableError
}

// NewServerError creates a new ServerError.
func NewServerError(statusCode int, message string) *ServerError {
	return &ServerError{
		SeaTableError: SeaTableError{
			Message:    message,
			StatusCode: statusCode,
		},
	}
}

// QueryError is returned when a SQL query response reports failure.
type QueryError struct {
	SQL     string `json:"sql"`
	Message string `json:"message"`
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %s", e.Message)
}

// errorBody covers the error payload shapes returned by dtable-server,
// dtable-db and the API gateway.
type errorBody struct {
	ErrorMsg     string `json:"error_msg"`
	ErrorMessage string `json:"error_message"`
	Detail       string `json:"detail"`
}

func (b errorBody) message() string {
	switch {
	case b.ErrorMsg != "":
		return b.ErrorMsg
	case b.ErrorMessage != "":
		return b.ErrorMessage
	}
	return b.Detail
}

// ParseErrorResponse parses an HTTP response into an appropriate error type.
func ParseErrorResponse(resp *http.Response, requestURL string) error {
	var body errorBody
	if resp.Body != nil {
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &body)
	}

	message := body.message()
	if message == "" {
		message = resp.Status
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return NewValidationError(message)
	case http.StatusUnauthorized:
		return NewAuthenticationError(message)
	case http.StatusForbidden:
		return NewAuthorizationError(message)
	case http.StatusNotFound:
		return NewNotFoundError(message)
	case http.StatusTooManyRequests:
		return NewRateLimitError(RateLimitInfoFromResponse(resp, requestURL, 1), message)
	default:
		if resp.StatusCode >= 500 {
			return NewServerError(resp.StatusCode, message)
		}
		return &SeaTableError{
			Message:    message,
			StatusCode: resp.StatusCode,
		}
	}
}

// IsRetryableError returns true if the error should trigger a retry.
func IsRetryableError(err error) bool {
	switch err.(type) {
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *TimeoutError:
		return true
	}
	return false
}
