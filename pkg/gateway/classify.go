// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/llm"
)

// Classify maps a failed remote call onto the gateway taxonomy. The status
// code wins over the status text, which wins over the message text.
func Classify(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.CodeContextLost
	}

	var ae *errors.AgisError
	if stderrors.As(err, &ae) && isGatewayCode(ae.Code) {
		return ae.Code
	}

	var apiErr *llm.APIError
	if stderrors.As(err, &apiErr) {
		if code, ok := classifyStatusCode(apiErr.StatusCode); ok {
			return code
		}
		if code, ok := classifyStatusText(apiErr.Status); ok {
			return code
		}
	}

	return classifyMessage(err.Error())
}

func isGatewayCode(code errors.ErrorCode) bool {
	switch code {
	case errors.CodeRateLimit, errors.CodeServerError, errors.CodeAuth,
		errors.CodeInvalidRequest, errors.CodeUnknown, errors.CodeContextLost:
		return true
	}
	return false
}

func classifyStatusCode(status int) (errors.ErrorCode, bool) {
	switch {
	case status == 429:
		return errors.CodeRateLimit, true
	case status >= 500 && status <= 599:
		return errors.CodeServerError, true
	case status == 401 || status == 403:
		return errors.CodeAuth, true
	case status == 400 || status == 404 || status == 409 || status == 413 || status == 422:
		return errors.CodeInvalidRequest, true
	}
	return "", false
}

func classifyStatusText(status string) (errors.ErrorCode, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RESOURCE_EXHAUSTED":
		return errors.CodeRateLimit, true
	case "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED":
		return errors.CodeServerError, true
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return errors.CodeAuth, true
	case "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION", "OUT_OF_RANGE":
		return errors.CodeInvalidRequest, true
	}
	return "", false
}

var messageSignals = []struct {
	code    errors.ErrorCode
	needles []string
}{
	{errors.CodeRateLimit, []string{"429", "rate limit", "ratelimit", "quota", "resource_exhausted", "too many requests"}},
	{errors.CodeServerError, []string{"500", "502", "503", "504", "unavailable", "overloaded", "internal error", "server error"}},
	{errors.CodeAuth, []string{"401", "403", "unauthenticated", "unauthorized", "permission denied", "api key"}},
	{errors.CodeInvalidRequest, []string{"400", "invalid_argument", "invalid argument", "bad request", "invalid request"}},
}

func classifyMessage(msg string) errors.ErrorCode {
	lower := strings.ToLower(msg)
	for _, signal := range messageSignals {
		for _, needle := range signal.needles {
			if strings.Contains(lower, needle) {
				return signal.code
			}
		}
	}
	return errors.CodeUnknown
}
