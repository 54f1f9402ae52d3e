// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed errors shared by the gateway, the dispatcher
// and the orchestration loop.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies failures for monitoring and recovery decisions.
type ErrorCode string

const (
	// CodeRateLimit indicates the remote service throttled the caller.
	CodeRateLimit ErrorCode = "RATE_LIMIT"

	// CodeServerError indicates a transient failure on the remote side.
	CodeServerError ErrorCode = "SERVER_ERROR"

	// CodeAuth indicates missing or rejected credentials.
	CodeAuth ErrorCode = "AUTH_ERROR"

	// CodeInvalidRequest indicates the remote service refused the request shape.
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// CodeUnknown is used when a failure cannot be classified.
	CodeUnknown ErrorCode = "UNKNOWN"

	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates caller supplied input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidToolCall indicates a tool call whose shape did not validate.
	CodeInvalidToolCall ErrorCode = "INVALID_TOOL_CALL"

	// CodeNotFound indicates a resource (usually a role alias) was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeContextLost indicates the context was canceled while waiting.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeStorage indicates a graph log or vector store failure.
	CodeStorage ErrorCode = "STORAGE_ERROR"
)

// AgisError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AgisError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *AgisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AgisError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AgisError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
		Context:     e.Context,
		Attributes:  e.Attributes,
	})
}

// New creates a new AgisError with the given code, message, and cause.
// Rate limits and server errors start out recoverable.
func New(code ErrorCode, msg string, cause error) *AgisError {
	return &AgisError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Attributes:  make(map[string]string),
		Recoverable: code == CodeRateLimit || code == CodeServerError,
		StatusCode:  codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
func (e *AgisError) WithContext(key string, value interface{}) *AgisError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
func (e *AgisError) WithAttribute(key, value string) *AgisError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be retried.
func (e *AgisError) WithRecoverable(recoverable bool) *AgisError {
	e.Recoverable = recoverable
	return e
}

// WithStatusCode overrides the status code derived from the error code.
func (e *AgisError) WithStatusCode(status int) *AgisError {
	e.StatusCode = status
	return e
}

// AsAgisError returns err as an AgisError, searching the wrap chain.
// Errors that are not typed are wrapped as CodeUnknown.
func AsAgisError(err error) *AgisError {
	if err == nil {
		return nil
	}
	var ae *AgisError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeUnknown, "unclassified error", err)
}

// CodeOf returns the code of the first AgisError in the chain, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var ae *AgisError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// IsRecoverable reports whether err carries a recoverable AgisError.
func IsRecoverable(err error) bool {
	var ae *AgisError
	if stderrors.As(err, &ae) {
		return ae.Recoverable
	}
	return false
}

// RecoverableString returns "true" or "false" for metric attributes.
func (e *AgisError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeAuth:
		return 401
	case CodeInvalidInput, CodeInvalidRequest, CodeInvalidToolCall:
		return 400
	case CodeRateLimit:
		return 429
	case CodeServerError:
		return 503
	default:
		return 500
	}
}
