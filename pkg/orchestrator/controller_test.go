// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/gateway"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/resilience"
	agtesting "github.com/jllopis/agis/pkg/testing"
)

var (
	isOrchestrator = agtesting.SystemContains("Operating Rules")
	isAnalyst      = agtesting.SystemContains("business analyst")
	isSupervisor   = agtesting.SystemContains("You are the Supervisor")
	isDirector     = agtesting.SystemContains("You are the Director")
	isWriter       = agtesting.SystemContains("You are the Writer")
)

func invokeCall(alias, query string) llm.ToolCall {
	return agtesting.NewToolCall("invoke").WithArg("agent_alias", alias).WithArg("query", query).Build()
}

func askCall(question string) llm.ToolCall {
	return agtesting.NewToolCall("ask_human").WithArg("question", question).Build()
}

func completeCall(report string) llm.ToolCall {
	return agtesting.NewToolCall("complete").WithArg("final_report", report).Build()
}

func say(p *agtesting.ScenarioProvider, cond func(llm.ChatRequest) bool, text string, calls ...llm.ToolCall) {
	p.AddScriptedResponse(agtesting.ScriptedResponse{Content: text, ToolCalls: calls, Condition: cond})
}

func newController(t *testing.T, p *agtesting.ScenarioProvider, opts ...Option) *Controller {
	t.Helper()
	retry := resilience.DefaultRetryConfig().WithSleep(func(context.Context, time.Duration) error { return nil })
	c, err := New(gateway.New(p, gateway.WithRetry(retry)), core.DefaultDirectory(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func userMessage(req llm.ChatRequest) string {
	return req.Messages[len(req.Messages)-1].Content
}

func orchestratorRequests(p *agtesting.ScenarioProvider) []llm.ChatRequest {
	var out []llm.ChatRequest
	for _, r := range p.Requests() {
		if isOrchestrator(r) {
			out = append(out, r)
		}
	}
	return out
}

func TestSubmitCompletesAfterLeadershipApproval(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "I'll start with the market.", invokeCall("analyst", "assess market size"))
	say(p, isAnalyst, "Large market.\n\n### Key Insights\nTAM is $5B")
	say(p, isOrchestrator, "We have what we need.", completeCall("Market is $5B"))
	say(p, isSupervisor, "AGIS_AUDIT::APPROVE")
	say(p, isDirector, "PROCEED:: enough")
	for i, draft := range []string{"draft one", "draft two", "final deliverable"} {
		say(p, isWriter, draft)
		say(p, isDirector, []string{"APPROVE:: nice", "APPROVE:: nicer", "APPROVE:: publish"}[i])
	}

	events := agtesting.NewEventCollector()
	var ctrl *Controller
	var leaked []string
	var mu sync.Mutex
	emitter := core.EventEmitterFunc(func(ctx context.Context, ev core.Event) {
		events.Emit(ctx, ev)
		if ev.Type == core.EventRoleMessage && ev.Role == "writer" {
			if d := ctrl.Snapshot().Deliverable; d != "" {
				mu.Lock()
				leaked = append(leaked, d)
				mu.Unlock()
			}
		}
	})
	ctrl = newController(t, p, WithEmitter(emitter))

	if err := ctrl.Submit(context.Background(), "Launch a product"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Status != core.StatusCompleted || snap.Phase != core.PhaseCompleted {
		t.Fatalf("expected completion, got status=%s phase=%s errors=%v", snap.Status, snap.Phase, snap.Errors)
	}
	if snap.Deliverable != "final deliverable" {
		t.Errorf("unexpected deliverable %q", snap.Deliverable)
	}
	if len(leaked) != 0 {
		t.Errorf("drafts must not be visible before approval: %v", leaked)
	}
	if got := ctrl.Knowledge().Snapshot(); got != "[analyst]: TAM is $5B" {
		t.Errorf("unexpected knowledge base %q", got)
	}
	if len(events.OfType(core.EventDeliverablePublished)) != 1 {
		t.Errorf("expected exactly one published deliverable")
	}
	if len(snap.Thinking) != 0 {
		t.Errorf("no role should be thinking after completion: %v", snap.Thinking)
	}
	if p.Pending() != 0 {
		t.Errorf("%d scripted responses were not used", p.Pending())
	}
	if snap.Graph[0].From != core.ExternalActor || snap.Graph[1].Type != core.EdgeInvoke {
		t.Errorf("unexpected graph %+v", snap.Graph[:2])
	}
}

func TestAuditRejectionResumesExecution(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Done.", completeCall("X"))
	say(p, isSupervisor, "AGIS_AUDIT::REJECT rework pricing")
	say(p, isOrchestrator, "Need input.", askCall("What price range?"))
	ctrl := newController(t, p)

	if err := ctrl.Submit(context.Background(), "Price the product"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Phase != core.PhaseExecution || snap.Status != core.StatusWaitingForHuman {
		t.Fatalf("expected execution phase waiting for the user, got %s/%s", snap.Phase, snap.Status)
	}
	reqs := orchestratorRequests(p)
	if len(reqs) != 2 || !strings.Contains(userMessage(reqs[1]), "rework pricing") {
		t.Errorf("the reinstruction must be the next prompt")
	}
	if snap.Deliverable != "" {
		t.Errorf("rejected reports must not be published")
	}
}

func TestLoopLimitEscalatesAndResetsBudget(t *testing.T) {
	p := agtesting.NewScenarioProvider().WithFallback(agtesting.ScriptedResponse{Content: "Still thinking.", Condition: isOrchestrator})
	ctrl := newController(t, p)

	if err := ctrl.Submit(context.Background(), "Do something vague"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Status != core.StatusWaitingForHuman || !strings.Contains(snap.PendingQuestion, "loop limit") {
		t.Fatalf("expected loop-limit escalation, got %+v", snap)
	}
	if p.CallCount() != DefaultMaxCycles || snap.Cycle != DefaultMaxCycles {
		t.Fatalf("expected %d cycles, got %d calls and cycle %d", DefaultMaxCycles, p.CallCount(), snap.Cycle)
	}
	if !strings.Contains(userMessage(p.Requests()[1]), "No tool was called") {
		t.Errorf("expected the generic evaluate prompt")
	}

	if err := ctrl.Answer(context.Background(), "yes, keep going"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if p.CallCount() != 2*DefaultMaxCycles {
		t.Errorf("resuming after the loop limit must restart the cycle budget, got %d calls", p.CallCount())
	}
}

func TestAskHumanSuspendsAndResumes(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Need the budget first.", invokeCall("analyst", "size"), askCall("What is the budget?"))
	say(p, isOrchestrator, "Thanks.", askCall("Anything else?"))
	ctrl := newController(t, p)

	if err := ctrl.Submit(context.Background(), "Plan a launch"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Status != core.StatusWaitingForHuman || snap.PendingQuestion != "What is the budget?" {
		t.Fatalf("expected pending question, got %+v", snap)
	}
	if p.CallCount() != 1 {
		t.Errorf("no task may run once ask_human is dispatched, got %d calls", p.CallCount())
	}

	// While waiting, Submit is routed to Answer.
	if err := ctrl.Submit(context.Background(), "50k"); err != nil {
		t.Fatalf("Submit answer: %v", err)
	}
	reqs := orchestratorRequests(p)
	if !strings.Contains(userMessage(reqs[1]), "The user answered: 50k") {
		t.Errorf("answer must be folded into the next prompt: %s", userMessage(reqs[1]))
	}
	snap = ctrl.Snapshot()
	if snap.Cycle != 2 || snap.PendingQuestion != "Anything else?" {
		t.Errorf("resuming after a question keeps the cycle count, got %+v", snap)
	}
}

func TestAnswerWhenNotWaiting(t *testing.T) {
	ctrl := newController(t, agtesting.NewScenarioProvider())
	if err := ctrl.Answer(context.Background(), "hello"); !stderrors.Is(err, ErrNotWaiting) {
		t.Fatalf("expected ErrNotWaiting, got %v", err)
	}
}

type blockingCaller struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingCaller) Call(context.Context, gateway.Request, gateway.ChunkFunc) (*gateway.Result, error) {
	close(b.started)
	<-b.release
	return &gateway.Result{ToolCalls: []llm.ToolCall{askCall("continue?")}}, nil
}

func TestSubmitWhileProcessingIsBusy(t *testing.T) {
	caller := &blockingCaller{started: make(chan struct{}), release: make(chan struct{})}
	ctrl, err := New(caller, core.DefaultDirectory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Submit(context.Background(), "first") }()
	<-caller.started

	if err := ctrl.Submit(context.Background(), "second"); !stderrors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if err := ctrl.Reset(context.Background()); !stderrors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy from Reset, got %v", err)
	}
	close(caller.release)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}
	if got := ctrl.Snapshot().Request; got != "first" {
		t.Errorf("the second request must be a no-op, request is %q", got)
	}
}

func TestFailureIsRecorded(t *testing.T) {
	p := agtesting.NewScenarioProvider().WithDefaultError(&llm.APIError{StatusCode: 401, Message: "bad key"})
	events := agtesting.NewEventCollector()
	ctrl := newController(t, p, WithEmitter(events))

	err := ctrl.Submit(context.Background(), "anything")
	if errors.CodeOf(err) != errors.CodeAuth {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Status != core.StatusError || len(snap.Errors) != 1 || snap.Errors[0].Code != string(errors.CodeAuth) {
		t.Fatalf("expected one error record, got %+v", snap)
	}
	if snap.Errors[0].Timestamp.IsZero() {
		t.Errorf("error records are timestamped")
	}
	if !strings.Contains(ctrl.History().Snapshot(), failureNotice) {
		t.Errorf("the user must see a failure notice")
	}
	if !events.HasEvent(core.EventError) {
		t.Errorf("expected an error event")
	}
}

func TestInvokeParallelSkipsUnknownAlias(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	batch := agtesting.NewToolCall("invoke_parallel").WithArg("invocations", []map[string]string{
		{"agent_alias": "analyst", "query": "market"},
		{"agent_alias": "bogus_id", "query": "nothing"},
	}).Build()
	say(p, isOrchestrator, "Two tasks.", batch)
	say(p, isAnalyst, "Market is big")
	say(p, isOrchestrator, "Let me check.", askCall("ok?"))
	ctrl := newController(t, p)

	if err := ctrl.Submit(context.Background(), "Go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	var systemLines int
	for _, e := range ctrl.History().Entries() {
		if strings.Contains(e.Text, "bogus_id") {
			systemLines++
		}
	}
	if systemLines != 1 {
		t.Errorf("expected one error line naming bogus_id, got %d", systemLines)
	}
	next := userMessage(orchestratorRequests(p)[1])
	if !strings.Contains(next, "### analyst\nMarket is big") || strings.Contains(next, "### bogus_id") {
		t.Errorf("only the analyst result must be folded in:\n%s", next)
	}
}

func TestLeakedCommandsAreHidden(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Let me ask.\nprint(default_api.ask_human(question=\"ok?\"))", askCall("ok?"))
	ctrl := newController(t, p)
	if err := ctrl.Submit(context.Background(), "Go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, e := range ctrl.History().Entries() {
		if strings.Contains(e.Text, "default_api") {
			t.Errorf("leaked command reached the history: %q", e.Text)
		}
	}
}

func TestCompletionIntentNudge(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "The mission is complete.")
	say(p, isOrchestrator, "Right.", askCall("Shall I finish?"))
	ctrl := newController(t, p)
	if err := ctrl.Submit(context.Background(), "Go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.Contains(userMessage(orchestratorRequests(p)[1]), "did not call the complete tool") {
		t.Errorf("expected the completion nudge")
	}
}

func TestMemberAddedPrompt(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Adding counsel.", agtesting.NewToolCall("add_member").
		WithArg("agent_alias", "counsel").WithArg("reason", "contracts").Build())
	say(p, isOrchestrator, "Ok.", askCall("next?"))
	ctrl := newController(t, p, WithInitialTeam("analyst"))
	if err := ctrl.Submit(context.Background(), "Go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	next := userMessage(orchestratorRequests(p)[1])
	if !strings.Contains(next, teamChangedPrompt) || !strings.Contains(next, "- counsel") {
		t.Errorf("expected the team-changed prompt with the new roster:\n%s", next)
	}
}

func TestReset(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Adding counsel.", agtesting.NewToolCall("add_member").
		WithArg("agent_alias", "counsel").WithArg("reason", "contracts").Build(), askCall("ok?"))
	ctrl := newController(t, p, WithInitialTeam("analyst"))
	if err := ctrl.Submit(context.Background(), "Go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ctrl.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Status != core.StatusIdle || snap.PendingQuestion != "" || len(snap.Graph) != 0 {
		t.Errorf("unexpected state after reset %+v", snap)
	}
	if ctrl.History().Len() != 0 || strings.Join(snap.Team, ",") != "analyst" {
		t.Errorf("history and team must be reset, team=%v", snap.Team)
	}
}

func TestAskHumanOutranksCompletion(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Wrapping up.", invokeCall("analyst", "size"), completeCall("X"), askCall("Publish now?"))
	ctrl := newController(t, p)

	if err := ctrl.Submit(context.Background(), "Launch"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Status != core.StatusWaitingForHuman || snap.PendingQuestion != "Publish now?" {
		t.Fatalf("expected the question to suspend the loop, got %s %q", snap.Status, snap.PendingQuestion)
	}
	if p.CallCount() != 1 {
		t.Errorf("neither the task nor the leadership review may run, got %d calls", p.CallCount())
	}
	for _, ev := range snap.Graph {
		if ev.To == "analyst" {
			t.Errorf("an invoke that never ran must not be recorded: %+v", ev)
		}
	}
}

type recallingMirror struct {
	hits    []string
	queries []string
}

func (m *recallingMirror) Remember(context.Context, memory.Entry) error { return nil }

func (m *recallingMirror) Recall(_ context.Context, query string, _ int) ([]string, error) {
	m.queries = append(m.queries, query)
	return m.hits, nil
}

func TestSubmitRecallsEarlierInsights(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	say(p, isOrchestrator, "Need input.", askCall("Which market?"))
	mirror := &recallingMirror{hits: []string{"[analyst]: the EU market is saturated"}}
	ctrl := newController(t, p, WithKnowledgeMirror(mirror))

	if err := ctrl.Submit(context.Background(), "Enter a new market"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(mirror.queries) != 1 || mirror.queries[0] != "Enter a new market" {
		t.Fatalf("expected the request to be recalled, got %v", mirror.queries)
	}
	reqs := orchestratorRequests(p)
	if len(reqs) != 1 || !strings.Contains(userMessage(reqs[0]), "## Knowledge Base\n[analyst]: the EU market is saturated") {
		t.Errorf("recalled insights must reach the orchestrator prompt")
	}

	if err := ctrl.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if ctrl.Knowledge().Snapshot() != "" {
		t.Errorf("reset must drop recalled insights")
	}
}

func TestNewValidatesConfiguration(t *testing.T) {
	p := agtesting.NewScenarioProvider()
	gw := gateway.New(p)
	if _, err := New(gw, core.DefaultDirectory(), WithInitialTeam("ghost")); errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT for unknown team member, got %v", err)
	}
	if _, err := New(gw, core.DefaultDirectory(), WithMaxCycles(0)); err == nil {
		t.Errorf("expected error for zero max cycles")
	}
	ctrl, err := New(gw, core.DefaultDirectory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, alias := range ctrl.Snapshot().Team {
		if alias == "orchestrator" || alias == "writer" {
			t.Errorf("leadership roles are not part of the default team: %v", ctrl.Snapshot().Team)
		}
	}
}
