// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch turns the orchestrator's tool calls into agent tasks,
// graph events and control signals. It never calls the remote service.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/team"
)

// ReviewRequestLabel labels the orchestrator-to-reviewer edge of a review.
const ReviewRequestLabel = "Review Request"

// Outcome is what one cycle of tool calls asks the loop to do.
type Outcome struct {
	Tasks []core.AgentTask
	// AskedHuman is set by ask_human; dispatch stopped at that call.
	AskedHuman    bool
	HumanQuestion string
	// Completed is set by complete; FinalReport carries its payload.
	Completed   bool
	FinalReport string
	MemberAdded bool
	// Rejected counts calls or entries that were logged and skipped.
	Rejected int

	// edges of the queued tasks, recorded only when the tasks will run.
	edges []edge
}

type edge struct {
	from, to string
	kind     core.EdgeType
	label    string
}

// RunsTasks reports whether the loop runs Tasks. A question to the user or
// a completion attempt in the same response takes precedence.
func (o Outcome) RunsTasks() bool {
	return len(o.Tasks) > 0 && !o.AskedHuman && !o.Completed
}

// Empty reports whether the cycle produced no actionable decision.
func (o Outcome) Empty() bool {
	return len(o.Tasks) == 0 && !o.AskedHuman && !o.Completed && !o.MemberAdded
}

// Dispatcher interprets tool calls issued by the orchestrator role.
type Dispatcher struct {
	dir          *core.Directory
	history      *memory.Log
	graph        *graph.Log
	team         *team.Team
	orchestrator string
	logger       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithOrchestrator sets the alias recorded as the source of invoke edges.
func WithOrchestrator(alias string) Option {
	return func(d *Dispatcher) { d.orchestrator = alias }
}

// New creates a dispatcher writing to the given history, graph and team.
func New(dir *core.Directory, history *memory.Log, g *graph.Log, t *team.Team, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		dir:          dir,
		history:      history,
		graph:        g,
		team:         t,
		orchestrator: "orchestrator",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch interprets calls in order. Invalid calls and unknown aliases are
// reported with one System line in the history each and skipped. ask_human
// stops processing of every later call. Graph edges of queued tasks are
// recorded only when the outcome runs them.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall) Outcome {
	var out Outcome
	for _, tc := range calls {
		call, err := Parse(tc)
		if err != nil {
			d.reject(ctx, &out, "dispatch.invalid_call", fmt.Sprintf("Invalid tool call %q skipped: %v", tc.Function.Name, err))
			continue
		}

		d.logger.DebugContext(ctx, "dispatch.call", slog.String("tool", call.ToolName()))

		switch c := call.(type) {
		case Invoke:
			d.invoke(ctx, &out, c.AgentAlias, c.Query, ToolInvoke)
		case InvokeParallel:
			for _, inv := range c.Invocations {
				if inv.AgentAlias == "" || inv.Query == "" {
					d.reject(ctx, &out, "dispatch.invalid_call",
						fmt.Sprintf("Invalid invoke_parallel entry for %q skipped: agent_alias and query are required", inv.AgentAlias))
					continue
				}
				d.invoke(ctx, &out, inv.AgentAlias, inv.Query, ToolInvokeParallel)
			}
		case Consult:
			d.consult(ctx, &out, c)
		case Review:
			d.review(ctx, &out, c)
		case AddMember:
			d.addMember(ctx, &out, c)
		case AskHuman:
			out.AskedHuman = true
			out.HumanQuestion = c.Question
			d.logger.InfoContext(ctx, "dispatch.ask_human", slog.Int("dropped_tasks", len(out.Tasks)))
			return d.commit(ctx, out)
		case Complete:
			out.Completed = true
			out.FinalReport = c.FinalReport
		}
	}
	return d.commit(ctx, out)
}

func (d *Dispatcher) commit(ctx context.Context, out Outcome) Outcome {
	if out.RunsTasks() {
		for _, e := range out.edges {
			d.record(ctx, e.from, e.to, e.kind, e.label)
		}
	} else if len(out.Tasks) > 0 {
		d.logger.DebugContext(ctx, "dispatch.tasks_superseded", slog.Int("tasks", len(out.Tasks)))
	}
	out.edges = nil
	return out
}

func (d *Dispatcher) invoke(ctx context.Context, out *Outcome, alias, query, tool string) {
	role, ok := d.dir.Lookup(alias)
	if !ok {
		d.unknownAlias(ctx, out, tool, alias)
		return
	}
	out.Tasks = append(out.Tasks, core.NewAgentTask(role, query))
	out.edges = append(out.edges, edge{from: d.orchestrator, to: role.Alias, kind: core.EdgeInvoke})
}

func (d *Dispatcher) consult(ctx context.Context, out *Outcome, c Consult) {
	if !d.dir.IsKnownActor(c.FromAlias) {
		d.unknownAlias(ctx, out, ToolConsult, c.FromAlias)
		return
	}
	to, ok := d.dir.Lookup(c.ToAlias)
	if !ok {
		d.unknownAlias(ctx, out, ToolConsult, c.ToAlias)
		return
	}
	from := c.FromAlias
	if r, ok := d.dir.Lookup(from); ok {
		from = r.Alias
	}
	query := fmt.Sprintf("[Consultation from %s]\n%s", from, c.Query)
	out.Tasks = append(out.Tasks, core.NewAgentTask(to, query))
	out.edges = append(out.edges, edge{from: from, to: to.Alias, kind: core.EdgeConsult})
}

func (d *Dispatcher) review(ctx context.Context, out *Outcome, c Review) {
	reviewer, ok := d.dir.Lookup(c.ReviewerAlias)
	if !ok {
		d.unknownAlias(ctx, out, ToolReview, c.ReviewerAlias)
		return
	}
	target, ok := d.dir.Lookup(c.TargetAlias)
	if !ok {
		d.unknownAlias(ctx, out, ToolReview, c.TargetAlias)
		return
	}
	query := fmt.Sprintf("[Review request: assess the work of %s]\n%s", target.Alias, c.Query)
	out.Tasks = append(out.Tasks, core.NewAgentTask(reviewer, query))
	out.edges = append(out.edges,
		edge{from: d.orchestrator, to: reviewer.Alias, kind: core.EdgeInvoke, label: ReviewRequestLabel},
		edge{from: reviewer.Alias, to: target.Alias, kind: core.EdgeReview},
	)
}

func (d *Dispatcher) addMember(ctx context.Context, out *Outcome, c AddMember) {
	role, ok := d.dir.Lookup(c.AgentAlias)
	if !ok {
		d.unknownAlias(ctx, out, ToolAddMember, c.AgentAlias)
		return
	}
	if d.team.Add(role) {
		d.history.Appendf("%s joined the team. Reason: %s", role.Alias, c.Reason)
	} else {
		d.history.Appendf("%s is already on the team. Reason given: %s", role.Alias, c.Reason)
	}
	out.MemberAdded = true
	d.record(ctx, d.orchestrator, role.Alias, core.EdgeAddMember, c.Reason)
}

func (d *Dispatcher) unknownAlias(ctx context.Context, out *Outcome, tool, alias string) {
	d.reject(ctx, out, "dispatch.unknown_alias",
		fmt.Sprintf("Unknown agent alias %q in %s; task skipped.", alias, tool))
}

func (d *Dispatcher) reject(ctx context.Context, out *Outcome, event, line string) {
	out.Rejected++
	d.history.Appendf("%s", line)
	d.logger.WarnContext(ctx, event, slog.String("detail", line))
}

func (d *Dispatcher) record(ctx context.Context, from, to string, edge core.EdgeType, label string) {
	if err := d.graph.Record(ctx, from, to, edge, label); err != nil {
		d.logger.WarnContext(ctx, "dispatch.graph_event_rejected",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("code", string(errors.CodeOf(err))),
		)
	}
}
