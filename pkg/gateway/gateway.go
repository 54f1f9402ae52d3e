// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway issues remote calls to the language-model service on behalf
// of a role. Every call is streamed, classified on failure, retried when the
// failure is transient, and stripped of inline media, which is moved to the
// artifact registry and replaced by a placeholder tag.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agis/pkg/artifact"
	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/resilience"
	"github.com/jllopis/agis/pkg/telemetry"
)

// Request is one role invocation.
type Request struct {
	Role        core.Role
	Instruction string
	Query       string
	History     string
	Knowledge   string
	// Model overrides the gateway default for this call.
	Model string
	// EnableCapabilities turns on service-side web search and code execution.
	EnableCapabilities bool
	Attachments        []llm.Attachment
	Tools              []llm.Tool
	ThinkingBudget     int
}

// Result is the accumulated outcome of a successful call.
type Result struct {
	Text      string
	ToolCalls []llm.ToolCall
	Artifacts []artifact.Artifact
	Usage     llm.Usage
	Attempts  int
}

// ChunkFunc receives partial text as it streams in. Text from a failed
// attempt may already have been delivered before a retry starts over.
type ChunkFunc func(text string)

// Caller is the contract every component uses to reach the service.
type Caller interface {
	Call(ctx context.Context, req Request, onChunk ChunkFunc) (*Result, error)
}

// Gateway implements Caller over an llm.StreamingProvider.
type Gateway struct {
	provider     llm.StreamingProvider
	providerName string
	model        string
	artifacts    *artifact.Registry
	retry        resilience.RetryConfig
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithModel sets the default model identifier.
func WithModel(model string) Option {
	return func(g *Gateway) { g.model = model }
}

// WithProviderName labels spans with the backend name.
func WithProviderName(name string) Option {
	return func(g *Gateway) { g.providerName = name }
}

// WithArtifacts sets the registry inline media is moved to.
func WithArtifacts(r *artifact.Registry) Option {
	return func(g *Gateway) { g.artifacts = r }
}

// WithRetry sets the retry policy.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(g *Gateway) { g.retry = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a gateway over provider.
func New(provider llm.StreamingProvider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  provider,
		artifacts: artifact.NewRegistry(),
		retry:     resilience.DefaultRetryConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Artifacts returns the registry generated media is stored in.
func (g *Gateway) Artifacts() *artifact.Registry {
	return g.artifacts
}

// Call issues the request, retrying RATE_LIMIT and SERVER_ERROR failures.
// Any other failure is returned immediately as an *errors.AgisError.
func (g *Gateway) Call(ctx context.Context, req Request, onChunk ChunkFunc) (*Result, error) {
	if onChunk == nil {
		onChunk = func(string) {}
	}
	ctx = core.WithActor(ctx, req.Role.Alias)
	runID, _ := core.RunID(ctx)
	chatReq := g.chatRequest(req)

	ctx, span := telemetry.Tracer().Start(ctx, "gateway.Call",
		trace.WithAttributes(telemetry.RoleAttributes(req.Role.Alias, req.Role.Team, runID)...),
		trace.WithAttributes(telemetry.LLMAttributes(chatReq.Model, g.providerName, len(chatReq.Messages), 0)...),
	)
	defer span.End()

	start := time.Now()
	var result *Result
	retry := g.retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		code := errors.CodeOf(err)
		g.logger.WarnContext(ctx, "gateway.retry",
			slog.String("role", req.Role.Alias),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("code", string(code)),
			slog.String("error", err.Error()),
		)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int(telemetry.AttrGatewayAttempt, attempt),
			attribute.String(telemetry.AttrGatewayErrorCode, string(code)),
		))
		g.metrics.RecordRetry(ctx, code)
	})

	err := retry.Do(ctx, func(attempt int) error {
		res, err := g.attempt(ctx, req.Role.Alias, chatReq, onChunk)
		if err != nil {
			return errors.New(Classify(err), "remote call failed", err).
				WithContext("role", req.Role.Alias).
				WithContext("attempt", attempt).
				WithAttribute(telemetry.AttrRoleAlias, req.Role.Alias)
		}
		res.Attempts = attempt
		result = res
		return nil
	})

	g.metrics.RecordGatewayCall(ctx, req.Role.Alias, time.Since(start), err)
	if err != nil {
		ae := errors.AsAgisError(err)
		span.RecordError(ae)
		span.SetStatus(codes.Error, string(ae.Code))
		span.SetAttributes(attribute.String(telemetry.AttrGatewayErrorCode, string(ae.Code)))
		g.metrics.RecordError(ctx, ae, "gateway")
		g.logger.ErrorContext(ctx, "gateway.call.failed",
			slog.String("role", req.Role.Alias),
			slog.String("code", string(ae.Code)),
			slog.String("error", ae.Error()),
		)
		return nil, ae
	}

	span.SetAttributes(telemetry.LLMUsageAttributes(result.Usage.PromptTokens, result.Usage.CompletionTokens,
		float64(time.Since(start).Milliseconds()))...)
	span.SetAttributes(
		attribute.Int(telemetry.AttrLLMToolCalls, len(result.ToolCalls)),
		attribute.Int(telemetry.AttrGatewayArtifacts, len(result.Artifacts)),
		attribute.Int(telemetry.AttrGatewayAttempt, result.Attempts),
	)
	span.SetStatus(codes.Ok, "")
	g.logger.DebugContext(ctx, "gateway.call.done",
		slog.String("role", req.Role.Alias),
		slog.Int("attempts", result.Attempts),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Int("artifacts", len(result.Artifacts)),
	)
	return result, nil
}

func (g *Gateway) attempt(ctx context.Context, role string, chatReq llm.ChatRequest, onChunk ChunkFunc) (*Result, error) {
	stream, err := g.provider.ChatStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var text strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			// Drain so the producer goroutine can exit.
			for range stream {
			}
			return nil, chunk.Error
		}
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			onChunk(chunk.Content)
		}
		res.ToolCalls = append(res.ToolCalls, chunk.ToolCalls...)
		for _, media := range chunk.Media {
			a := g.artifacts.Register(role, media.MIMEType, media.Data, "")
			res.Artifacts = append(res.Artifacts, a)
			tag := "\n" + artifact.Placeholder(a.ID) + "\n"
			text.WriteString(tag)
			onChunk(tag)
		}
		if chunk.Usage != nil {
			res.Usage = *chunk.Usage
		}
	}
	res.Text = text.String()
	return res, nil
}

func (g *Gateway) chatRequest(req Request) llm.ChatRequest {
	model := req.Model
	if model == "" {
		model = g.model
	}
	return llm.ChatRequest{
		Model:              model,
		Messages:           BuildMessages(req),
		Tools:              req.Tools,
		Attachments:        req.Attachments,
		EnableCapabilities: req.EnableCapabilities,
		ThinkingBudget:     req.ThinkingBudget,
	}
}

// BuildMessages renders the request as a system instruction plus one user
// message carrying history, knowledge and the task, in that order.
func BuildMessages(req Request) []llm.Message {
	var b strings.Builder
	if h := strings.TrimSpace(req.History); h != "" {
		b.WriteString("## Conversation History\n")
		b.WriteString(h)
		b.WriteString("\n\n")
	}
	if k := strings.TrimSpace(req.Knowledge); k != "" {
		b.WriteString("## Knowledge Base\n")
		b.WriteString(k)
		b.WriteString("\n\n")
	}
	b.WriteString("## Task\n")
	b.WriteString(req.Query)

	var messages []llm.Message
	if req.Instruction != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: req.Instruction})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: b.String()})
}

var _ Caller = (*Gateway)(nil)
