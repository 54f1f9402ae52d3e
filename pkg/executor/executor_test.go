// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/gateway"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/resilience"
	agtesting "github.com/jllopis/agis/pkg/testing"
)

func testDirectory(t *testing.T) *core.Directory {
	t.Helper()
	dir, err := core.NewDirectory([]core.Role{
		{ID: "orchestrator", Alias: "orchestrator", Team: "leadership", Instruction: "You coordinate."},
		{ID: "analyst", Alias: "analyst", Team: "strategy", Instruction: "You are the analyst.",
			Capabilities: []core.Capability{core.CapabilityWebSearch}},
		{ID: "finance", Alias: "cfo", Team: "operations", Instruction: "You are the cfo."},
		{ID: "designer", Alias: "designer", Team: "product", Instruction: "You are the designer."},
	})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	return dir
}

type env struct {
	dir       *core.Directory
	history   *memory.Log
	knowledge *memory.KnowledgeBase
	graph     *graph.Log
	events    *agtesting.EventCollector
}

func newEnv(t *testing.T) *env {
	dir := testDirectory(t)
	return &env{
		dir:       dir,
		history:   memory.NewHistory(),
		knowledge: memory.NewKnowledgeBase(),
		graph:     graph.NewLog(dir),
		events:    agtesting.NewEventCollector(),
	}
}

func (e *env) task(t *testing.T, alias, query string) core.AgentTask {
	t.Helper()
	role, ok := e.dir.Lookup(alias)
	if !ok {
		t.Fatalf("unknown role %s", alias)
	}
	return core.NewAgentTask(role, query)
}

func noSleep() resilience.RetryConfig {
	return resilience.DefaultRetryConfig().WithSleep(func(context.Context, time.Duration) error { return nil })
}

func TestRunCapturesInsights(t *testing.T) {
	e := newEnv(t)
	provider := agtesting.NewScenarioProvider().
		AddScriptedResponse(agtesting.ScriptedResponse{
			Content:   "The market is large.\n\n### Key Insights\n- TAM is $5B",
			Condition: agtesting.SystemContains("analyst"),
		})
	ex := New(gateway.New(provider), e.history, e.knowledge, e.graph, WithEmitter(e.events))

	results := ex.Run(context.Background(), []core.AgentTask{e.task(t, "analyst", "assess market size")})
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results %+v", results)
	}
	if got := e.knowledge.Snapshot(); got != "[analyst]: - TAM is $5B" {
		t.Errorf("unexpected knowledge base %q", got)
	}
	if !strings.HasPrefix(e.history.Snapshot(), "analyst: The market is large.") {
		t.Errorf("result not appended to history: %q", e.history.Snapshot())
	}
	events := e.graph.Events()
	if len(events) != 1 || events[0].Type != core.EdgeReport || events[0].From != "analyst" || events[0].To != "orchestrator" {
		t.Errorf("unexpected graph events %+v", events)
	}
	if !e.events.HasEvent(core.EventRoleChunk) || len(e.events.OfType(core.EventRoleThinking)) != 2 {
		t.Errorf("expected chunk and thinking events, got %d events", e.events.Count())
	}
	req := provider.LastRequest()
	if !req.EnableCapabilities {
		t.Errorf("analyst declares web_search; capabilities should be enabled")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	provider := agtesting.NewScenarioProvider().
		AddScriptedResponse(agtesting.ScriptedResponse{
			Error:     &llm.APIError{StatusCode: 401, Message: "bad key"},
			Condition: agtesting.SystemContains("cfo"),
		}).
		AddScriptedResponse(agtesting.ScriptedResponse{
			Content:   "Budget looks fine",
			Condition: agtesting.SystemContains("analyst"),
		}).
		AddScriptedResponse(agtesting.ScriptedResponse{
			Content:   "Mockups ready",
			Condition: agtesting.SystemContains("designer"),
		})
	ex := New(gateway.New(provider, gateway.WithRetry(noSleep())), e.history, e.knowledge, e.graph)

	results := ex.Run(context.Background(), []core.AgentTask{
		e.task(t, "cfo", "costs"),
		e.task(t, "analyst", "market"),
		e.task(t, "designer", "mockups"),
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err == nil || !strings.Contains(results[0].Text, "sorry") {
		t.Errorf("expected apology for cfo, got %+v", results[0])
	}
	if results[1].Text != "Budget looks fine" || results[2].Text != "Mockups ready" {
		t.Errorf("siblings must succeed: %+v", results[1:])
	}
	if e.history.Len() != 3 {
		t.Errorf("every settled task is recorded, got %d", e.history.Len())
	}
}

type blockingCaller struct {
	started atomic.Int32
	release chan struct{}
}

func (b *blockingCaller) Call(ctx context.Context, req gateway.Request, _ gateway.ChunkFunc) (*gateway.Result, error) {
	b.started.Add(1)
	<-b.release
	return &gateway.Result{Text: req.Role.Alias + " done"}, nil
}

func TestRunWaitsForAllTasks(t *testing.T) {
	e := newEnv(t)
	caller := &blockingCaller{release: make(chan struct{})}
	ex := New(caller, e.history, e.knowledge, e.graph)

	done := make(chan []Result)
	go func() {
		done <- ex.Run(context.Background(), []core.AgentTask{
			e.task(t, "analyst", "a"),
			e.task(t, "cfo", "b"),
		})
	}()

	deadline := time.After(2 * time.Second)
	for caller.started.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("tasks did not start concurrently")
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case <-done:
		t.Fatalf("Run returned before every task settled")
	case <-time.After(20 * time.Millisecond):
	}
	close(caller.release)

	results := <-done
	if results[0].Text != "analyst done" || results[1].Text != "cfo done" {
		t.Errorf("results must keep task order: %+v", results)
	}
}

type panicCaller struct{}

func (panicCaller) Call(context.Context, gateway.Request, gateway.ChunkFunc) (*gateway.Result, error) {
	panic("boom")
}

func TestRunRecoversPanics(t *testing.T) {
	e := newEnv(t)
	ex := New(panicCaller{}, e.history, e.knowledge, e.graph)
	results := ex.Run(context.Background(), []core.AgentTask{e.task(t, "designer", "x")})
	if results[0].Err == nil {
		t.Fatalf("expected the panic to become a task failure")
	}
}

func TestRunWithoutCapabilities(t *testing.T) {
	e := newEnv(t)
	provider := agtesting.NewScenarioProvider().AddResponse("ok")
	ex := New(gateway.New(provider), e.history, e.knowledge, e.graph, WithCapabilities(false), WithModel("gemini-2.5-flash"))
	ex.Run(context.Background(), []core.AgentTask{e.task(t, "analyst", "x")})
	req := provider.LastRequest()
	if req.EnableCapabilities || req.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected request options %+v", req)
	}
}

func TestCombine(t *testing.T) {
	got := Combine([]Result{
		{Task: core.AgentTask{Role: core.Role{Alias: "analyst"}}, Text: "big market\n"},
		{Task: core.AgentTask{Role: core.Role{Alias: "cfo"}}, Text: "thin margins"},
	})
	want := "### analyst\nbig market\n\n### cfo\nthin margins"
	if got != want {
		t.Errorf("Combine() = %q, want %q", got, want)
	}
}
