// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs a batch of agent tasks concurrently and joins on all
// of them before returning.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agis/pkg/artifact"
	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/gateway"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/telemetry"
)

// Result is the settled outcome of one task. Err is set when the call
// failed; Text then holds the apology shown in place of the answer.
type Result struct {
	Task      core.AgentTask
	Text      string
	Artifacts []artifact.Artifact
	Err       error
}

// Executor fans tasks out to the gateway.
type Executor struct {
	gateway        gateway.Caller
	history        *memory.Log
	knowledge      *memory.KnowledgeBase
	graph          *graph.Log
	emitter        core.EventEmitter
	logger         *slog.Logger
	metrics        *telemetry.Metrics
	orchestrator   string
	model          string
	thinkingBudget int
	capabilities   bool
}

// Option configures an Executor.
type Option func(*Executor)

func WithEmitter(em core.EventEmitter) Option {
	return func(e *Executor) { e.emitter = em }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithOrchestrator sets the alias results are reported to.
func WithOrchestrator(alias string) Option {
	return func(e *Executor) { e.orchestrator = alias }
}

// WithModel overrides the gateway model for role calls.
func WithModel(model string) Option {
	return func(e *Executor) { e.model = model }
}

func WithThinkingBudget(tokens int) Option {
	return func(e *Executor) { e.thinkingBudget = tokens }
}

// WithCapabilities allows roles that declare capabilities to use them.
// When false no role gets web search or code execution.
func WithCapabilities(enabled bool) Option {
	return func(e *Executor) { e.capabilities = enabled }
}

// New creates an executor.
func New(gw gateway.Caller, history *memory.Log, kb *memory.KnowledgeBase, g *graph.Log, opts ...Option) *Executor {
	e := &Executor{
		gateway:      gw,
		history:      history,
		knowledge:    kb,
		graph:        g,
		emitter:      core.NoopEventEmitter{},
		logger:       slog.Default(),
		orchestrator: "orchestrator",
		capabilities: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every task concurrently and returns once all of them have
// settled, in task order. A failing task never cancels its siblings.
//
// After the join each result is appended to the history, reported in the
// graph log and scanned for key insights.
func (e *Executor) Run(ctx context.Context, tasks []core.AgentTask) []Result {
	if len(tasks) == 0 {
		return nil
	}
	ctx, span := telemetry.Tracer().Start(ctx, "executor.Run",
		trace.WithAttributes(attribute.Int(telemetry.AttrTaskCount, len(tasks))))
	defer span.End()

	// Snapshots are taken once so every task in the batch sees the same context.
	history := e.history.Snapshot()
	knowledge := e.knowledge.Snapshot()

	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task core.AgentTask) {
			defer wg.Done()
			results[i] = e.runTask(ctx, task, history, knowledge)
		}(i, task)
	}
	wg.Wait()

	failed := 0
	for _, res := range results {
		alias := res.Task.Role.Alias
		e.history.Append(alias, res.Text)
		if err := e.graph.Record(ctx, alias, e.orchestrator, core.EdgeReport, ""); err != nil {
			e.logger.WarnContext(ctx, "executor.report_rejected", slog.String("role", alias), slog.String("error", err.Error()))
		}
		if res.Err != nil {
			failed++
			continue
		}
		if e.knowledge.Capture(ctx, alias, res.Text) {
			e.logger.DebugContext(ctx, "executor.insights_captured", slog.String("role", alias))
		}
	}
	e.logger.InfoContext(ctx, "executor.batch.done",
		slog.Int("tasks", len(tasks)),
		slog.Int("failed", failed),
	)
	return results
}

func (e *Executor) runTask(ctx context.Context, task core.AgentTask, history, knowledge string) (res Result) {
	role := task.Role
	res.Task = task

	e.emit(ctx, core.EventRoleThinking, role.Alias, map[string]any{"thinking": true})
	defer e.emit(ctx, core.EventRoleThinking, role.Alias, map[string]any{"thinking": false})

	defer func() {
		if r := recover(); r != nil {
			err := errors.New(errors.CodeInternal, "task panicked", fmt.Errorf("%v", r)).
				WithContext("role", role.Alias)
			res.Text = Apology(role.Alias, err)
			res.Err = err
		}
		e.metrics.RecordTask(ctx, role.Alias, res.Err != nil)
		e.emit(ctx, core.EventRoleMessage, role.Alias, map[string]any{"text": res.Text, "failed": res.Err != nil})
	}()

	out, err := e.gateway.Call(ctx, gateway.Request{
		Role:               role,
		Instruction:        role.Instruction,
		Query:              task.Query,
		History:            history,
		Knowledge:          knowledge,
		Model:              e.model,
		EnableCapabilities: e.capabilities && role.EnablesCapabilities(),
		ThinkingBudget:     e.thinkingBudget,
	}, func(chunk string) {
		e.emit(ctx, core.EventRoleChunk, role.Alias, map[string]any{"text": chunk})
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "executor.task.failed",
			slog.String("role", role.Alias),
			slog.String("task_id", task.ID),
			slog.String("code", string(errors.CodeOf(err))),
		)
		res.Text = Apology(role.Alias, err)
		res.Err = err
		return res
	}
	res.Text = out.Text
	res.Artifacts = out.Artifacts
	return res
}

func (e *Executor) emit(ctx context.Context, t core.EventType, role string, payload map[string]any) {
	e.emitter.Emit(ctx, core.NewEvent(ctx, t, role, payload))
}

// Apology is the text recorded for a role whose task failed.
func Apology(alias string, err error) string {
	return fmt.Sprintf("I'm sorry, %s could not complete this task (%s). Please proceed without my input or try again later.",
		alias, errors.CodeOf(err))
}

// Combine renders the results as one report, one section per role.
func Combine(results []Result) string {
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### ")
		b.WriteString(res.Task.Role.Alias)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(res.Text))
	}
	return b.String()
}
