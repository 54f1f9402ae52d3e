// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics for the
// orchestration runtime.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for agis telemetry.
const (
	// Role attributes
	AttrRoleAlias = "agis.role.alias"
	AttrRoleTeam  = "agis.role.team"
	AttrRunID     = "agis.run.id"

	// Orchestration attributes
	AttrCycle     = "agis.orchestration.cycle"
	AttrMaxCycles = "agis.orchestration.max_cycles"
	AttrPhase     = "agis.orchestration.phase"
	AttrStatus    = "agis.orchestration.status"
	AttrTaskCount = "agis.orchestration.task_count"
	AttrDraftLoop = "agis.leadership.draft_loop"
	AttrVerdict   = "agis.leadership.verdict"

	// Tool attributes
	AttrToolName  = "agis.tool.name"
	AttrToolValid = "agis.tool.valid"

	// Gateway attributes
	AttrGatewayAttempt   = "agis.gateway.attempt"
	AttrGatewayErrorCode = "agis.gateway.error_code"
	AttrGatewayArtifacts = "agis.gateway.artifacts"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

// RoleAttributes returns common attributes for spans executed on behalf of a role.
func RoleAttributes(alias, team, runID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRoleAlias, alias),
	}
	if team != "" {
		attrs = append(attrs, attribute.String(AttrRoleTeam, team))
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	return attrs
}

// CycleAttributes returns attributes for an orchestration cycle span.
func CycleAttributes(cycle, maxCycles int, phase string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrCycle, cycle),
	}
	if maxCycles > 0 {
		attrs = append(attrs, attribute.Int(AttrMaxCycles, maxCycles))
	}
	if phase != "" {
		attrs = append(attrs, attribute.String(AttrPhase, phase))
	}
	return attrs
}

// LLMAttributes returns attributes for gateway call spans.
func LLMAttributes(model, provider string, msgCount int, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}
