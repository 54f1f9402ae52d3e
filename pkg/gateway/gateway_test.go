// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/agis/pkg/artifact"
	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/resilience"
	agtesting "github.com/jllopis/agis/pkg/testing"
)

var analyst = core.Role{ID: "analyst", Alias: "analyst", Team: "strategy"}

func recordingRetry(delays *[]time.Duration) resilience.RetryConfig {
	return resilience.DefaultRetryConfig().WithSleep(func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestCallAccumulatesStream(t *testing.T) {
	provider := agtesting.NewScenarioProvider().AddScriptedResponse(agtesting.ScriptedResponse{
		Chunks:    []string{"Market ", "is ", "large."},
		ToolCalls: []llm.ToolCall{agtesting.NewToolCall("invoke").WithArg("agent_alias", "analyst").Build()},
	})
	g := New(provider, WithModel("gemini-2.5-pro"))

	var chunks []string
	res, err := g.Call(context.Background(), Request{
		Role:        analyst,
		Instruction: "You are an analyst",
		Query:       "assess market size",
		History:     "User: launch a product",
		Knowledge:   "[researcher]: competitors are few",
	}, func(s string) { chunks = append(chunks, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Market is large." {
		t.Errorf("unexpected text %q", res.Text)
	}
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}
	if len(res.ToolCalls) != 1 || res.Attempts != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	req := provider.LastRequest()
	if req.Model != "gemini-2.5-pro" {
		t.Errorf("expected default model, got %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("expected system + user messages, got %+v", req.Messages)
	}
	user := req.Messages[1].Content
	h := strings.Index(user, "## Conversation History")
	k := strings.Index(user, "## Knowledge Base")
	q := strings.Index(user, "## Task\nassess market size")
	if h < 0 || k < h || q < k {
		t.Errorf("unexpected user message layout:\n%s", user)
	}
}

func TestCallRegistersMediaAsArtifacts(t *testing.T) {
	provider := agtesting.NewScenarioProvider().AddScriptedResponse(agtesting.ScriptedResponse{
		Content: "Here is the chart",
		Media:   []llm.Media{{MIMEType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}}},
	})
	registry := artifact.NewRegistry()
	g := New(provider, WithArtifacts(registry))

	res, err := g.Call(context.Background(), Request{Role: analyst, Query: "draw"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(res.Artifacts))
	}
	a := res.Artifacts[0]
	if a.ProducingRole != "analyst" || a.Kind != artifact.KindImage {
		t.Errorf("unexpected artifact %+v", a)
	}
	if !strings.Contains(res.Text, artifact.Placeholder(a.ID)) {
		t.Errorf("expected placeholder in text %q", res.Text)
	}
	if strings.Contains(res.Text, "\x89PNG") {
		t.Errorf("raw media leaked into text")
	}
	if _, ok := registry.Get(a.ID); !ok {
		t.Errorf("artifact not registered")
	}
}

func TestCallRetriesServerErrorsWithBackoff(t *testing.T) {
	serverErr := &llm.APIError{StatusCode: 503, Message: "overloaded"}
	provider := agtesting.NewScenarioProvider().WithDefaultError(serverErr)

	var delays []time.Duration
	g := New(provider, WithRetry(recordingRetry(&delays)))

	_, err := g.Call(context.Background(), Request{Role: analyst, Query: "q"}, nil)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if errors.CodeOf(err) != errors.CodeServerError {
		t.Errorf("expected SERVER_ERROR, got %s", errors.CodeOf(err))
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("expected delays %v, got %v", want, delays)
	}
	if provider.CallCount() != 3 {
		t.Errorf("expected the call to give up after 3 attempts, got %d", provider.CallCount())
	}
}

func TestCallRecoversAfterRateLimit(t *testing.T) {
	provider := agtesting.NewScenarioProvider().
		AddErrorResponse(&llm.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"}).
		AddResponse("done")

	var delays []time.Duration
	g := New(provider, WithRetry(recordingRetry(&delays)))

	res, err := g.Call(context.Background(), Request{Role: analyst, Query: "q"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "done" || res.Attempts != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Errorf("expected one 1s delay, got %v", delays)
	}
}

func TestCallRetriesMidStreamFailure(t *testing.T) {
	provider := agtesting.NewScenarioProvider().
		AddScriptedResponse(agtesting.ScriptedResponse{Chunks: []string{"par"}, StreamError: &llm.APIError{StatusCode: 500}}).
		AddResponse("complete answer")

	var delays []time.Duration
	g := New(provider, WithRetry(recordingRetry(&delays)))

	res, err := g.Call(context.Background(), Request{Role: analyst, Query: "q"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "complete answer" {
		t.Errorf("failed attempt text must be discarded, got %q", res.Text)
	}
}

func TestCallFatalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"auth", &llm.APIError{StatusCode: 401}, errors.CodeAuth},
		{"invalid", &llm.APIError{StatusCode: 400, Status: "INVALID_ARGUMENT"}, errors.CodeInvalidRequest},
		{"unknown", stderrors.New("something odd"), errors.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := agtesting.NewScenarioProvider().WithDefaultError(tt.err)
			var delays []time.Duration
			g := New(provider, WithRetry(recordingRetry(&delays)))

			_, err := g.Call(context.Background(), Request{Role: analyst, Query: "q"}, nil)
			if errors.CodeOf(err) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, errors.CodeOf(err))
			}
			if provider.CallCount() != 1 || len(delays) != 0 {
				t.Errorf("expected a single attempt, got %d calls and %v delays", provider.CallCount(), delays)
			}
		})
	}
}

func TestCallContextCanceledDuringBackoff(t *testing.T) {
	provider := agtesting.NewScenarioProvider().WithDefaultError(&llm.APIError{StatusCode: 503})
	ctx, cancel := context.WithCancel(context.Background())
	retry := resilience.DefaultRetryConfig().WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	g := New(provider, WithRetry(retry))

	_, err := g.Call(ctx, Request{Role: analyst, Query: "q"}, nil)
	if errors.CodeOf(err) != errors.CodeContextLost {
		t.Fatalf("expected CONTEXT_LOST, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"429", &llm.APIError{StatusCode: 429}, errors.CodeRateLimit},
		{"500", &llm.APIError{StatusCode: 500}, errors.CodeServerError},
		{"503 wrapped", fmt.Errorf("call: %w", &llm.APIError{StatusCode: 503}), errors.CodeServerError},
		{"403", &llm.APIError{StatusCode: 403}, errors.CodeAuth},
		{"404", &llm.APIError{StatusCode: 404}, errors.CodeInvalidRequest},
		{"status text only", &llm.APIError{Status: "UNAVAILABLE"}, errors.CodeServerError},
		{"status text exhausted", &llm.APIError{Status: "RESOURCE_EXHAUSTED"}, errors.CodeRateLimit},
		{"message quota", stderrors.New("Quota exceeded for project"), errors.CodeRateLimit},
		{"message overloaded", stderrors.New("model is overloaded"), errors.CodeServerError},
		{"message api key", stderrors.New("API key not valid"), errors.CodeAuth},
		{"message bad request", stderrors.New("bad request: missing field"), errors.CodeInvalidRequest},
		{"canceled", context.Canceled, errors.CodeContextLost},
		{"typed", errors.New(errors.CodeAuth, "denied", nil), errors.CodeAuth},
		{"unknown", stderrors.New("boom"), errors.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildMessagesOmitsEmptySections(t *testing.T) {
	msgs := BuildMessages(Request{Query: "hello"})
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
	if strings.Contains(msgs[0].Content, "History") || strings.Contains(msgs[0].Content, "Knowledge") {
		t.Errorf("empty sections must be omitted: %q", msgs[0].Content)
	}
}

func TestCallPassesCapabilitiesAndThinking(t *testing.T) {
	provider := agtesting.NewScenarioProvider().AddResponse("ok")
	g := New(provider)

	_, err := g.Call(context.Background(), Request{
		Role:               analyst,
		Query:              "q",
		Model:              "gemini-2.5-flash",
		EnableCapabilities: true,
		ThinkingBudget:     1024,
		Attachments:        []llm.Attachment{{Name: "brief.pdf", MIMEType: "application/pdf"}},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := provider.LastRequest()
	if req.Model != "gemini-2.5-flash" || !req.EnableCapabilities || req.ThinkingBudget != 1024 || len(req.Attachments) != 1 {
		t.Errorf("request options not forwarded: %+v", req)
	}
}
