// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives one user request from strategy to a published
// deliverable. The orchestrator role decides through tool calls; the
// controller dispatches them, runs task batches, hands completion attempts
// to leadership review and suspends when the user must answer a question.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agis/pkg/artifact"
	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/dispatch"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/executor"
	"github.com/jllopis/agis/pkg/gateway"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/leadership"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/team"
	"github.com/jllopis/agis/pkg/telemetry"
)

// DefaultMaxCycles is the cycle ceiling of one request.
const DefaultMaxCycles = 50

var (
	// ErrBusy is returned when a request is already being processed.
	ErrBusy = stderrors.New("orchestrator: a request is already being processed")
	// ErrNotWaiting is returned by Answer when no question is pending.
	ErrNotWaiting = stderrors.New("orchestrator: no question is pending")
)

type escalation int

const (
	escalationNone escalation = iota
	escalationQuestion
	escalationLoopLimit
)

type loopState struct {
	runID       string
	request     string
	phase       core.Phase
	status      core.Status
	cycle       int
	prompt      string
	question    string
	escalation  escalation
	deliverable string
	thinking    map[string]bool
	errors      []core.ErrorRecord
}

// Controller is the orchestration loop state machine.
type Controller struct {
	gateway    gateway.Caller
	dir        *core.Directory
	history    *memory.Log
	knowledge  *memory.KnowledgeBase
	graph      *graph.Log
	team       *team.Team
	artifacts  *artifact.Registry
	dispatcher *dispatch.Dispatcher
	executor   *executor.Executor
	workflow   *leadership.Workflow

	leadershipCfg  leadership.Config
	maxCycles      int
	model          string
	thinkingBudget int
	capabilities   bool
	initialTeam    []string
	graphStore     graph.Store
	mirror         memory.Mirror
	recallLimit    int

	emitter core.EventEmitter
	logger  *slog.Logger
	metrics *telemetry.Metrics

	processing atomic.Bool
	mu         sync.RWMutex
	state      loopState
}

// New builds a controller and the components it owns.
func New(gw gateway.Caller, dir *core.Directory, opts ...Option) (*Controller, error) {
	c := &Controller{
		gateway:       gw,
		dir:           dir,
		leadershipCfg: leadership.DefaultConfig(),
		maxCycles:     DefaultMaxCycles,
		capabilities:  true,
		recallLimit:   memory.DefaultRecallLimit,
		emitter:       core.NoopEventEmitter{},
		logger:        slog.Default(),
		state:         loopState{phase: core.PhaseStrategy, status: core.StatusIdle, thinking: map[string]bool{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxCycles < 1 {
		return nil, errors.New(errors.CodeInvalidInput, "max cycles must be positive", nil).WithContext("max_cycles", c.maxCycles)
	}
	if _, ok := dir.Lookup(c.leadershipCfg.Orchestrator); !ok {
		return nil, errors.New(errors.CodeInvalidInput, "orchestrator role not in directory", nil).
			WithContext("alias", c.leadershipCfg.Orchestrator)
	}

	members, err := c.resolveTeam()
	if err != nil {
		return nil, err
	}
	if c.artifacts == nil {
		c.artifacts = artifact.NewRegistry()
	}
	c.history = memory.NewHistory()
	kbOpts := []memory.KnowledgeOption{
		memory.WithKnowledgeLogger(c.logger),
		memory.WithRecallLimit(c.recallLimit),
	}
	if c.mirror != nil {
		kbOpts = append(kbOpts, memory.WithMirror(c.mirror))
	}
	c.knowledge = memory.NewKnowledgeBase(kbOpts...)
	graphOpts := []graph.Option{graph.WithLogger(c.logger)}
	if c.graphStore != nil {
		graphOpts = append(graphOpts, graph.WithStore(c.graphStore))
	}
	c.graph = graph.NewLog(dir, graphOpts...)
	c.team = team.New(members...)

	observer := core.EventEmitterFunc(c.observe)
	orchestrator := c.leadershipCfg.Orchestrator
	c.dispatcher = dispatch.New(dir, c.history, c.graph, c.team,
		dispatch.WithOrchestrator(orchestrator),
		dispatch.WithLogger(c.logger),
	)
	c.executor = executor.New(gw, c.history, c.knowledge, c.graph,
		executor.WithOrchestrator(orchestrator),
		executor.WithEmitter(observer),
		executor.WithLogger(c.logger),
		executor.WithMetrics(c.metrics),
		executor.WithModel(c.model),
		executor.WithThinkingBudget(c.thinkingBudget),
		executor.WithCapabilities(c.capabilities),
	)
	c.workflow, err = leadership.New(gw, dir, c.history, c.knowledge, c.graph, c.team,
		leadership.WithConfig(c.leadershipCfg),
		leadership.WithEmitter(observer),
		leadership.WithPhaseFunc(c.setPhase),
		leadership.WithLogger(c.logger),
		leadership.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// resolveTeam returns the configured initial team, or every role outside
// the leadership group when none is configured.
func (c *Controller) resolveTeam() ([]core.Role, error) {
	if len(c.initialTeam) == 0 {
		lead, _ := c.dir.Lookup(c.leadershipCfg.Orchestrator)
		var members []core.Role
		for _, r := range c.dir.Roles() {
			if r.Team != lead.Team {
				members = append(members, r)
			}
		}
		return members, nil
	}
	members := make([]core.Role, 0, len(c.initialTeam))
	for _, alias := range c.initialTeam {
		r, ok := c.dir.Lookup(alias)
		if !ok {
			return nil, errors.New(errors.CodeInvalidInput, "initial team member not in directory", nil).
				WithContext("alias", alias)
		}
		members = append(members, r)
	}
	return members, nil
}

// Submit starts a new request and runs the loop until it completes,
// suspends for a human answer or fails. While a question is pending the
// text is treated as the answer. A request arriving while another one is
// being processed returns ErrBusy and changes nothing.
func (c *Controller) Submit(ctx context.Context, request string) error {
	if c.Waiting() {
		return c.Answer(ctx, request)
	}
	request = strings.TrimSpace(request)
	if request == "" {
		return errors.New(errors.CodeInvalidInput, "request is empty", nil)
	}
	if !c.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.processing.Store(false)

	runID := core.NewRunID()
	ctx = core.WithRunID(ctx, runID)

	c.mu.Lock()
	c.state.runID = runID
	c.state.request = request
	c.state.cycle = 0
	c.state.question = ""
	c.state.escalation = escalationNone
	c.state.deliverable = ""
	c.state.prompt = strategyPrompt(request)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "orchestrator.request", slog.String("run_id", runID))
	c.history.Append(core.ExternalActor, request)
	c.record(ctx, core.ExternalActor, c.leadershipCfg.Orchestrator, core.EdgeInstruction, "Request")
	c.knowledge.Prime(ctx, request)
	c.setPhase(ctx, core.PhaseStrategy)
	return c.run(ctx)
}

// Answer resumes a suspended loop with the user's answer.
func (c *Controller) Answer(ctx context.Context, answer string) error {
	if !c.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.processing.Store(false)

	c.mu.Lock()
	if c.state.status != core.StatusWaitingForHuman {
		c.mu.Unlock()
		return ErrNotWaiting
	}
	question, kind := c.state.question, c.state.escalation
	c.state.question = ""
	c.state.escalation = escalationNone
	if kind == escalationLoopLimit {
		c.state.cycle = 0
		c.state.prompt = loopResumePrompt(answer)
	} else {
		c.state.prompt = answerPrompt(question, answer)
	}
	runID := c.state.runID
	c.mu.Unlock()

	ctx = core.WithRunID(ctx, runID)
	c.logger.InfoContext(ctx, "orchestrator.resume", slog.Bool("loop_limit", kind == escalationLoopLimit))
	c.history.Append(core.ExternalActor, answer)
	c.record(ctx, core.ExternalActor, c.leadershipCfg.Orchestrator, core.EdgeInstruction, "Answer")
	return c.run(ctx)
}

// run executes cycles until a terminal condition. Panics and failures are
// recorded in the error log and put the controller in the error status.
func (c *Controller) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.fail(ctx, errors.New(errors.CodeInternal, "orchestration panicked", fmt.Errorf("%v", r)))
		}
	}()
	c.setStatus(ctx, core.StatusRunning)

	for {
		c.mu.Lock()
		if c.state.cycle >= c.maxCycles {
			c.mu.Unlock()
			c.escalate(ctx, loopLimitQuestion(c.maxCycles), escalationLoopLimit)
			return nil
		}
		c.state.cycle++
		cycle, prompt := c.state.cycle, c.state.prompt
		c.mu.Unlock()

		done, err := c.cycle(ctx, cycle, prompt)
		if err != nil {
			return c.fail(ctx, err)
		}
		if done {
			return nil
		}
	}
}

// cycle runs one orchestrator turn and reports whether the loop must stop.
func (c *Controller) cycle(ctx context.Context, cycle int, prompt string) (bool, error) {
	phase := c.Phase()
	if cycle > 1 && phase == core.PhaseStrategy {
		c.setPhase(ctx, core.PhaseExecution)
		phase = core.PhaseExecution
	}
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.cycle",
		trace.WithAttributes(telemetry.CycleAttributes(cycle, c.maxCycles, string(phase))...))
	defer span.End()
	c.metrics.RecordCycle(ctx, string(phase))
	c.logger.DebugContext(ctx, "orchestrator.cycle.start", slog.Int("cycle", cycle), slog.String("phase", string(phase)))

	text, calls, err := c.callOrchestrator(ctx, cycle, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return true, err
	}

	out := c.dispatcher.Dispatch(ctx, calls)
	switch {
	case out.AskedHuman:
		c.escalate(ctx, out.HumanQuestion, escalationQuestion)
		return true, nil

	case out.Completed:
		result, err := c.workflow.Run(ctx, out.FinalReport)
		if err != nil {
			return true, err
		}
		if result.Approved {
			c.publish(ctx, result.Deliverable)
			return true, nil
		}
		c.setPhase(ctx, core.PhaseExecution)
		c.setPrompt(result.Reinstruction)

	case out.RunsTasks():
		results := c.executor.Run(ctx, out.Tasks)
		c.setPrompt(resultsPrompt(executor.Combine(results)))

	case out.MemberAdded:
		c.setPrompt(teamChangedPrompt)

	case dispatch.SuggestsCompletion(text):
		c.setPrompt(completionNudge)

	default:
		c.setPrompt(evaluatePrompt)
	}
	return false, nil
}

func (c *Controller) callOrchestrator(ctx context.Context, cycle int, prompt string) (string, []llm.ToolCall, error) {
	role, _ := c.dir.Lookup(c.leadershipCfg.Orchestrator)
	c.setThinking(ctx, role.Alias, true)
	defer c.setThinking(ctx, role.Alias, false)

	res, err := c.gateway.Call(ctx, gateway.Request{
		Role:           role,
		Instruction:    instruction(role.Instruction),
		Query:          cycleQuery(c.team.Roster(), c.dir.Aliases(), cycle, c.maxCycles, prompt),
		History:        c.history.Snapshot(),
		Knowledge:      c.knowledge.Snapshot(),
		Model:          c.model,
		Tools:          dispatch.Tools(),
		ThinkingBudget: c.thinkingBudget,
	}, func(chunk string) {
		c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRoleChunk, role.Alias, map[string]any{"text": chunk}))
	})
	if err != nil {
		return "", nil, err
	}
	visible := dispatch.StripCommands(res.Text)
	if visible != "" {
		c.history.Append(role.Alias, visible)
	}
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRoleMessage, role.Alias, map[string]any{
		"text":       visible,
		"tool_calls": len(res.ToolCalls),
	}))
	return res.Text, res.ToolCalls, nil
}

func (c *Controller) escalate(ctx context.Context, question string, kind escalation) {
	c.mu.Lock()
	c.state.question = question
	c.state.escalation = kind
	c.mu.Unlock()

	reason := "ask_human"
	if kind == escalationLoopLimit {
		reason = "loop_limit"
	}
	c.history.Appendf("Question for the user: %s", question)
	c.metrics.RecordEscalation(ctx, reason)
	c.record(ctx, c.leadershipCfg.Orchestrator, core.ExternalActor, core.EdgeInstruction, "Question")
	c.logger.InfoContext(ctx, "orchestrator.escalate", slog.String("reason", reason))
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventHumanQuestion, c.leadershipCfg.Orchestrator, map[string]any{
		"question": question,
		"reason":   reason,
	}))
	c.setStatus(ctx, core.StatusWaitingForHuman)
}

func (c *Controller) publish(ctx context.Context, deliverable string) {
	c.mu.Lock()
	c.state.deliverable = deliverable
	c.mu.Unlock()
	c.setPhase(ctx, core.PhaseCompleted)
	c.setStatus(ctx, core.StatusCompleted)
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventDeliverablePublished, c.leadershipCfg.Drafter, map[string]any{
		"deliverable": deliverable,
		"artifacts":   len(artifact.References(deliverable)),
	}))
	c.logger.InfoContext(ctx, "orchestrator.completed")
}

func (c *Controller) fail(ctx context.Context, err error) error {
	ae := errors.AsAgisError(err)
	rec := core.ErrorRecord{Timestamp: time.Now().UTC(), Code: string(ae.Code), Message: ae.Error()}
	c.mu.Lock()
	c.state.errors = append(c.state.errors, rec)
	c.mu.Unlock()

	c.history.Appendf("%s", failureNotice)
	c.metrics.RecordError(ctx, ae, "orchestrator")
	c.logger.ErrorContext(ctx, "orchestrator.failed", slog.String("code", rec.Code), slog.String("error", rec.Message))
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventError, "", map[string]any{"code": rec.Code, "message": rec.Message}))
	c.setStatus(ctx, core.StatusError)
	return ae
}

// Reset clears the history, knowledge base, artifacts, graph, team and
// loop state. It fails with ErrBusy while a request is being processed.
func (c *Controller) Reset(ctx context.Context) error {
	if !c.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.processing.Store(false)

	c.history.Reset()
	c.knowledge.Reset()
	c.artifacts.Reset()
	c.graph.Reset()
	c.team.Reset()
	c.mu.Lock()
	c.state = loopState{phase: core.PhaseStrategy, status: core.StatusIdle, thinking: map[string]bool{}}
	c.mu.Unlock()
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventStatusChanged, "", map[string]any{"status": string(core.StatusIdle)}))
	return nil
}

// Snapshot returns a copy of the read model.
func (c *Controller) Snapshot() core.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	thinking := make([]string, 0, len(c.state.thinking))
	for alias, busy := range c.state.thinking {
		if busy {
			thinking = append(thinking, alias)
		}
	}
	sort.Strings(thinking)
	errs := make([]core.ErrorRecord, len(c.state.errors))
	copy(errs, c.state.errors)
	return core.Snapshot{
		RunID:           c.state.runID,
		Request:         c.state.request,
		Phase:           c.state.phase,
		Status:          c.state.status,
		Cycle:           c.state.cycle,
		MaxCycles:       c.maxCycles,
		Thinking:        thinking,
		Team:            c.team.Aliases(),
		PendingQuestion: c.state.question,
		Deliverable:     c.state.deliverable,
		Errors:          errs,
		Graph:           c.graph.Events(),
	}
}

// Waiting reports whether the loop is suspended on a question.
func (c *Controller) Waiting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.status == core.StatusWaitingForHuman
}

// Phase returns the current phase.
func (c *Controller) Phase() core.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.phase
}

// History returns the conversation history log.
func (c *Controller) History() *memory.Log { return c.history }

// Knowledge returns the knowledge base.
func (c *Controller) Knowledge() *memory.KnowledgeBase { return c.knowledge }

// Graph returns the graph event log.
func (c *Controller) Graph() *graph.Log { return c.graph }

// Artifacts returns the artifact registry.
func (c *Controller) Artifacts() *artifact.Registry { return c.artifacts }

func (c *Controller) setPrompt(prompt string) {
	c.mu.Lock()
	c.state.prompt = prompt
	c.mu.Unlock()
}

func (c *Controller) setPhase(ctx context.Context, phase core.Phase) {
	c.mu.Lock()
	changed := c.state.phase != phase
	c.state.phase = phase
	c.mu.Unlock()
	if changed {
		c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventPhaseChanged, "", map[string]any{"phase": string(phase)}))
	}
}

func (c *Controller) setStatus(ctx context.Context, status core.Status) {
	c.mu.Lock()
	changed := c.state.status != status
	c.state.status = status
	c.mu.Unlock()
	if changed {
		c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventStatusChanged, "", map[string]any{"status": string(status)}))
	}
}

func (c *Controller) setThinking(ctx context.Context, alias string, busy bool) {
	c.observe(ctx, core.NewEvent(ctx, core.EventRoleThinking, alias, map[string]any{"thinking": busy}))
}

// observe tracks the thinking set and forwards every event.
func (c *Controller) observe(ctx context.Context, ev core.Event) {
	if ev.Type == core.EventRoleThinking {
		busy, _ := ev.Payload["thinking"].(bool)
		c.mu.Lock()
		if busy {
			c.state.thinking[ev.Role] = true
		} else {
			delete(c.state.thinking, ev.Role)
		}
		c.mu.Unlock()
	}
	c.emitter.Emit(ctx, ev)
}

func (c *Controller) record(ctx context.Context, from, to string, edge core.EdgeType, label string) {
	if err := c.graph.Record(ctx, from, to, edge, label); err != nil {
		c.logger.WarnContext(ctx, "orchestrator.graph_event_rejected", slog.String("error", err.Error()))
	}
}
