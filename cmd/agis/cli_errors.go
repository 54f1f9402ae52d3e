// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/jllopis/agis/pkg/errors"
)

// CLIError wraps AgisError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.AgisError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ae *errors.AgisError, hint string) *CLIError {
	return &CLIError{AgisError: ae, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.AgisError == nil {
		return "unknown error"
	}
	msg := e.AgisError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ae, hint)
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg)
	return NewCLIError(ae, "run 'agis help' for usage information")
}

// WrapRunError attaches a hint matching the failure class of a run.
func WrapRunError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	ae := errors.AsAgisError(err)
	var hint string
	switch ae.Code {
	case errors.CodeAuth:
		hint = "check llm.api_key or the provider API key environment variable"
	case errors.CodeRateLimit, errors.CodeServerError:
		hint = "the service kept failing after retries; try again later or raise gateway.max_attempts"
	case errors.CodeInvalidRequest:
		hint = "check llm.model and the request size"
	case errors.CodeStorage:
		hint = "check graph.dsn and that the directory is writable"
	}
	return NewCLIError(ae, hint)
}

func printError(err error, asJSON bool) {
	writeError(os.Stderr, err, asJSON)
}

func writeError(w io.Writer, err error, asJSON bool) {
	cliErr := WrapRunError(err)
	if asJSON {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"code":    cliErr.Code,
			"message": cliErr.Message,
			"hint":    cliErr.Hint,
		}})
		return
	}
	fmt.Fprintf(w, "%s [%s]: %s\n", color.RedString("Error"), FormatErrorCode(cliErr.Code), cliErr.AgisError.Error())
	if cliErr.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", cliErr.Hint)
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeAuth:
		return "Unauthorized"
	case errors.CodeRateLimit:
		return "Rate Limited"
	case errors.CodeServerError:
		return "Service Unavailable"
	case errors.CodeInvalidRequest:
		return "Invalid Request"
	case errors.CodeContextLost:
		return "Context Lost"
	case errors.CodeStorage:
		return "Storage Error"
	default:
		return string(code)
	}
}
