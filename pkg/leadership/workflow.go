// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package leadership implements the review a final report goes through
// before a deliverable is published: an audit gate, a sufficiency decision
// and a bounded draft and review loop.
package leadership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/gateway"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/team"
	"github.com/jllopis/agis/pkg/telemetry"
)

// Stage names the step a workflow run ended in.
type Stage string

const (
	StageAudit      Stage = "audit"
	StageEvaluation Stage = "evaluation"
	StageDrafting   Stage = "drafting"
)

const (
	// MaxDrafts bounds the draft and review loop.
	MaxDrafts = 3
	// ForcedRejections is the number of leading reviews that reject
	// regardless of their content. Only the last review can approve.
	ForcedRejections = MaxDrafts - 1
)

// Config names the leadership roles.
type Config struct {
	Orchestrator string
	Auditor      string
	Senior       string
	Drafter      string
}

// DefaultConfig matches the default role directory.
func DefaultConfig() Config {
	return Config{
		Orchestrator: "orchestrator",
		Auditor:      "supervisor",
		Senior:       "director",
		Drafter:      "writer",
	}
}

// Validate checks the roles exist.
func (c Config) Validate(dir *core.Directory) error {
	for _, alias := range []string{c.Orchestrator, c.Auditor, c.Senior, c.Drafter} {
		if _, ok := dir.Lookup(alias); !ok {
			return errors.New(errors.CodeInvalidInput, "leadership role not in directory", nil).
				WithContext("alias", alias)
		}
	}
	return nil
}

// Outcome is the result of one completion attempt. When Approved is false
// the caller resumes the loop with Reinstruction.
type Outcome struct {
	Approved      bool
	Deliverable   string
	Reinstruction string
	Stage         Stage
	Reorganized   bool
	Team          []string
	Drafts        int
}

// Refinement is the draft loop state of one completion attempt.
type Refinement struct {
	DraftLoop int
	Feedback  []string
}

// PhaseFunc is told when the workflow enters a new phase.
type PhaseFunc func(ctx context.Context, phase core.Phase)

// Workflow runs leadership review.
type Workflow struct {
	cfg       Config
	gateway   gateway.Caller
	dir       *core.Directory
	history   *memory.Log
	knowledge *memory.KnowledgeBase
	graph     *graph.Log
	team      *team.Team
	emitter   core.EventEmitter
	onPhase   PhaseFunc
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Workflow.
type Option func(*Workflow)

func WithConfig(cfg Config) Option {
	return func(w *Workflow) { w.cfg = cfg }
}

func WithEmitter(em core.EventEmitter) Option {
	return func(w *Workflow) { w.emitter = em }
}

func WithPhaseFunc(fn PhaseFunc) Option {
	return func(w *Workflow) { w.onPhase = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// New creates a workflow. The configuration is validated against dir.
func New(gw gateway.Caller, dir *core.Directory, history *memory.Log, kb *memory.KnowledgeBase, g *graph.Log, t *team.Team, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		cfg:       DefaultConfig(),
		gateway:   gw,
		dir:       dir,
		history:   history,
		knowledge: kb,
		graph:     g,
		team:      t,
		emitter:   core.NoopEventEmitter{},
		onPhase:   func(context.Context, core.Phase) {},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.cfg.Validate(dir); err != nil {
		return nil, err
	}
	return w, nil
}

// Run reviews finalReport. Errors are returned only when a remote call
// fails; every rejection path returns an Outcome with a reinstruction.
func (w *Workflow) Run(ctx context.Context, finalReport string) (out Outcome, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "leadership.Run")
	defer func() {
		span.SetAttributes(
			attribute.Bool("agis.leadership.approved", out.Approved),
			attribute.String("agis.leadership.stage", string(out.Stage)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	w.onPhase(ctx, core.PhaseReporting)

	out, done, err := w.audit(ctx, finalReport)
	if err != nil || done {
		return out, err
	}
	out, done, err = w.evaluate(ctx, finalReport)
	if err != nil || done {
		return out, err
	}

	w.onPhase(ctx, core.PhaseRefinement)
	return w.refine(ctx, finalReport)
}

func (w *Workflow) audit(ctx context.Context, report string) (Outcome, bool, error) {
	w.record(ctx, w.cfg.Orchestrator, w.cfg.Auditor, core.EdgeReport, "Final Report")
	text, err := w.ask(ctx, w.cfg.Auditor, auditPrompt(report))
	if err != nil {
		return Outcome{Stage: StageAudit}, true, err
	}
	d := ParseAudit(text)
	w.verdict(ctx, StageAudit, d)
	if d.Verdict == VerdictApprove {
		w.record(ctx, w.cfg.Auditor, w.cfg.Senior, core.EdgeReport, "Audit Approved")
		return Outcome{}, false, nil
	}
	w.record(ctx, w.cfg.Auditor, w.cfg.Orchestrator, core.EdgeInstruction, "Audit Rejected")
	return Outcome{
		Stage:         StageAudit,
		Reinstruction: "The supervisor rejected the final report. Address the following and continue the work: " + d.Text,
	}, true, nil
}

func (w *Workflow) evaluate(ctx context.Context, report string) (Outcome, bool, error) {
	text, err := w.ask(ctx, w.cfg.Senior, evaluationPrompt(report))
	if err != nil {
		return Outcome{Stage: StageEvaluation}, true, err
	}
	d := ParseEvaluation(text)
	w.verdict(ctx, StageEvaluation, d)
	if d.Verdict == VerdictProceed {
		w.record(ctx, w.cfg.Senior, w.cfg.Drafter, core.EdgeInstruction, "Proceed to Draft")
		return Outcome{}, false, nil
	}

	w.record(ctx, w.cfg.Senior, w.cfg.Auditor, core.EdgeInstruction, "Reorganize")
	members, err := w.reorganize(ctx, d.Text)
	if err != nil {
		return Outcome{Stage: StageEvaluation}, true, err
	}
	w.record(ctx, w.cfg.Senior, w.cfg.Orchestrator, core.EdgeInstruction, "Reinstruct")
	return Outcome{
		Stage:       StageEvaluation,
		Reorganized: true,
		Team:        members,
		Reinstruction: fmt.Sprintf("The director found the work insufficient: %s\nThe team is now: %s. Continue the work with this team.",
			d.Text, strings.Join(members, ", ")),
	}, true, nil
}

// reorganize asks the supervisor to restate the team and applies the
// change. Aliases missing from the directory are reported and ignored.
func (w *Workflow) reorganize(ctx context.Context, directive string) ([]string, error) {
	text, err := w.ask(ctx, w.cfg.Auditor, reorganizePrompt(directive, w.team.Roster(), w.dir.Aliases()))
	if err != nil {
		return nil, err
	}
	change := ParseTeam(text)
	if change.Replace != nil {
		roles := w.resolve(ctx, change.Replace)
		if len(roles) > 0 {
			w.team.Replace(roles)
		}
	}
	for _, role := range w.resolve(ctx, change.Add) {
		if w.team.Add(role) {
			w.record(ctx, w.cfg.Auditor, role.Alias, core.EdgeAddMember, "Reorganization")
		}
	}
	members := w.team.Aliases()
	w.history.Appendf("Team reorganized by %s: %s", w.cfg.Auditor, strings.Join(members, ", "))
	return members, nil
}

func (w *Workflow) resolve(ctx context.Context, aliases []string) []core.Role {
	var roles []core.Role
	for _, alias := range aliases {
		role, ok := w.dir.Lookup(alias)
		if !ok {
			w.history.Appendf("Unknown agent alias %q in team restatement; ignored.", alias)
			w.logger.WarnContext(ctx, "leadership.unknown_alias", slog.String("alias", alias))
			continue
		}
		roles = append(roles, role)
	}
	return roles
}

func (w *Workflow) refine(ctx context.Context, report string) (Outcome, error) {
	state := Refinement{}
	var last Decision
	for state.DraftLoop = 0; state.DraftLoop < MaxDrafts; state.DraftLoop++ {
		w.logger.InfoContext(ctx, "leadership.draft", slog.Int("loop", state.DraftLoop))
		draft, err := w.ask(ctx, w.cfg.Drafter, draftPrompt(report, state.Feedback))
		if err != nil {
			return Outcome{Stage: StageDrafting, Drafts: state.DraftLoop}, err
		}
		w.record(ctx, w.cfg.Drafter, w.cfg.Senior, core.EdgeReport, fmt.Sprintf("Draft %d", state.DraftLoop+1))

		final := state.DraftLoop == MaxDrafts-1
		review, err := w.ask(ctx, w.cfg.Senior, reviewPrompt(draft, final))
		if err != nil {
			return Outcome{Stage: StageDrafting, Drafts: state.DraftLoop + 1}, err
		}
		last = ParseReview(review)
		if state.DraftLoop < ForcedRejections {
			last.Verdict = VerdictReject
		}
		w.verdict(ctx, StageDrafting, last)

		if last.Verdict == VerdictApprove {
			w.record(ctx, w.cfg.Senior, core.ExternalActor, core.EdgeReport, "Deliverable")
			return Outcome{
				Approved:    true,
				Deliverable: draft,
				Stage:       StageDrafting,
				Drafts:      state.DraftLoop + 1,
			}, nil
		}
		w.record(ctx, w.cfg.Senior, w.cfg.Drafter, core.EdgeReview, fmt.Sprintf("Revision %d", state.DraftLoop+1))
		state.Feedback = append(state.Feedback, last.Text)
	}

	w.record(ctx, w.cfg.Senior, w.cfg.Orchestrator, core.EdgeInstruction, "Deliverable Rejected")
	return Outcome{
		Stage:         StageDrafting,
		Drafts:        MaxDrafts,
		Reinstruction: "The director did not approve the final deliverable. Resolve the following and complete again: " + last.Text,
	}, nil
}

// ask invokes a leadership role and appends its answer to the history.
func (w *Workflow) ask(ctx context.Context, alias, query string) (string, error) {
	role, _ := w.dir.Lookup(alias)
	w.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRoleThinking, role.Alias, map[string]any{"thinking": true}))
	defer w.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRoleThinking, role.Alias, map[string]any{"thinking": false}))

	res, err := w.gateway.Call(ctx, gateway.Request{
		Role:        role,
		Instruction: role.Instruction,
		Query:       query,
		History:     w.history.Snapshot(),
		Knowledge:   w.knowledge.Snapshot(),
	}, func(chunk string) {
		w.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRoleChunk, role.Alias, map[string]any{"text": chunk}))
	})
	if err != nil {
		return "", errors.AsAgisError(err).WithContext("step", "leadership").WithContext("role", role.Alias)
	}
	w.history.Append(role.Alias, res.Text)
	w.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRoleMessage, role.Alias, map[string]any{"text": res.Text}))
	return res.Text, nil
}

func (w *Workflow) verdict(ctx context.Context, stage Stage, d Decision) {
	w.metrics.RecordVerdict(ctx, string(stage), string(d.Verdict))
	trace.SpanFromContext(ctx).AddEvent("verdict", trace.WithAttributes(
		attribute.String(telemetry.AttrVerdict, string(d.Verdict)),
		attribute.String("agis.leadership.stage", string(stage)),
	))
	w.logger.InfoContext(ctx, "leadership.verdict",
		slog.String("stage", string(stage)),
		slog.String("verdict", string(d.Verdict)),
		slog.Bool("marked", d.Marked),
	)
}

func (w *Workflow) record(ctx context.Context, from, to string, edge core.EdgeType, label string) {
	if err := w.graph.Record(ctx, from, to, edge, label); err != nil {
		w.logger.WarnContext(ctx, "leadership.graph_event_rejected", slog.String("error", err.Error()))
	}
}
