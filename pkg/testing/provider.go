// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides scripted providers and collectors for driving the
// orchestration runtime in tests without a remote service.
package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jllopis/agis/pkg/llm"
)

// ScenarioProvider is a scripted llm.StreamingProvider.
//
// Each call consumes the first queued response whose Condition accepts the
// request, so parallel callers can be routed by role regardless of the order
// in which their goroutines arrive. When nothing matches, the fallback is
// used, then the default error.
type ScenarioProvider struct {
	mu           sync.Mutex
	responses    []ScriptedResponse
	consumed     []bool
	fallback     *ScriptedResponse
	requests     []llm.ChatRequest
	defaultError error
	onChat       func(req llm.ChatRequest) (*llm.ChatResponse, error)
}

// ScriptedResponse defines a response for the scenario provider.
type ScriptedResponse struct {
	// Content is streamed as one chunk unless Chunks is set.
	Content string
	// Chunks, when set, are streamed in order instead of Content.
	Chunks    []string
	ToolCalls []llm.ToolCall
	Media     []llm.Media
	// Error fails the call before any chunk is produced.
	Error error
	// StreamError is delivered after the text chunks.
	StreamError error
	Usage       llm.Usage
	// Condition allows conditional responses based on request
	Condition func(req llm.ChatRequest) bool
}

// NewScenarioProvider creates a new scenario provider.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{}
}

// AddResponse queues a response to be returned.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddToolCallResponse queues a response with tool calls.
func (p *ScenarioProvider) AddToolCallResponse(content string, toolCalls ...llm.ToolCall) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content, ToolCalls: toolCalls})
}

// AddErrorResponse queues an error response.
func (p *ScenarioProvider) AddErrorResponse(err error) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Error: err})
}

// AddScriptedResponse adds a fully configured response.
func (p *ScenarioProvider) AddScriptedResponse(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	p.consumed = append(p.consumed, false)
	return p
}

// WithFallback sets the response used whenever no queued response matches.
func (p *ScenarioProvider) WithFallback(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = &resp
	return p
}

// WithDefaultError sets the error to return when no responses are queued.
func (p *ScenarioProvider) WithDefaultError(err error) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultError = err
	return p
}

// WithChatFunc sets a custom function for handling chat requests.
func (p *ScenarioProvider) WithChatFunc(fn func(req llm.ChatRequest) (*llm.ChatResponse, error)) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChat = fn
	return p
}

// Chat implements llm.Provider by draining ChatStream.
func (p *ScenarioProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	stream, err := p.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &llm.ChatResponse{}
	for chunk := range stream {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		resp.Content += chunk.Content
		resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
		resp.Media = append(resp.Media, chunk.Media...)
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	return resp, nil
}

// ChatStream implements llm.StreamingProvider.
func (p *ScenarioProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	chunks := resp.Chunks
	if len(chunks) == 0 && resp.Content != "" {
		chunks = []string{resp.Content}
	}

	out := make(chan llm.StreamChunk, len(chunks)+3)
	for _, c := range chunks {
		out <- llm.StreamChunk{Content: c}
	}
	if resp.StreamError != nil {
		out <- llm.StreamChunk{Error: resp.StreamError}
		close(out)
		return out, nil
	}
	if len(resp.ToolCalls) > 0 || len(resp.Media) > 0 {
		out <- llm.StreamChunk{ToolCalls: resp.ToolCalls, Media: resp.Media}
	}
	usage := resp.Usage
	out <- llm.StreamChunk{Done: true, Usage: &usage}
	close(out)
	return out, nil
}

func (p *ScenarioProvider) next(req llm.ChatRequest) (ScriptedResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)

	if p.onChat != nil {
		resp, err := p.onChat(req)
		if err != nil {
			return ScriptedResponse{}, err
		}
		return ScriptedResponse{Content: resp.Content, ToolCalls: resp.ToolCalls, Media: resp.Media, Usage: resp.Usage}, nil
	}

	for i, resp := range p.responses {
		if p.consumed[i] {
			continue
		}
		if resp.Condition == nil || resp.Condition(req) {
			p.consumed[i] = true
			return resp, nil
		}
	}

	if p.fallback != nil && (p.fallback.Condition == nil || p.fallback.Condition(req)) {
		return *p.fallback, nil
	}
	if p.defaultError != nil {
		return ScriptedResponse{}, p.defaultError
	}
	return ScriptedResponse{}, fmt.Errorf("no more scripted responses (call %d)", len(p.requests))
}

// Requests returns all captured requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]llm.ChatRequest, len(p.requests))
	copy(result, p.requests)
	return result
}

// LastRequest returns the most recent request.
func (p *ScenarioProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// CallCount returns the number of calls made.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Pending returns the number of queued responses not yet consumed.
func (p *ScenarioProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.consumed {
		if !c {
			n++
		}
	}
	return n
}

// Reset clears all state.
func (p *ScenarioProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = nil
	p.consumed = nil
	p.requests = nil
}

// SystemContains matches requests whose system message contains substr.
func SystemContains(substr string) func(req llm.ChatRequest) bool {
	return func(req llm.ChatRequest) bool {
		for _, m := range req.Messages {
			if m.Role == llm.RoleSystem && strings.Contains(m.Content, substr) {
				return true
			}
		}
		return false
	}
}

// UserContains matches requests whose user message contains substr.
func UserContains(substr string) func(req llm.ChatRequest) bool {
	return func(req llm.ChatRequest) bool {
		for _, m := range req.Messages {
			if m.Role == llm.RoleUser && strings.Contains(m.Content, substr) {
				return true
			}
		}
		return false
	}
}

// ToolCallBuilder helps construct tool calls for testing.
type ToolCallBuilder struct {
	id   string
	name string
	args map[string]any
}

// NewToolCall creates a new tool call builder.
func NewToolCall(name string) *ToolCallBuilder {
	return &ToolCallBuilder{
		name: name,
		args: make(map[string]any),
	}
}

// WithID sets the tool call ID.
func (b *ToolCallBuilder) WithID(id string) *ToolCallBuilder {
	b.id = id
	return b
}

// WithArg adds an argument to the tool call.
func (b *ToolCallBuilder) WithArg(key string, value any) *ToolCallBuilder {
	b.args[key] = value
	return b
}

// WithArgs sets all arguments at once.
func (b *ToolCallBuilder) WithArgs(args map[string]any) *ToolCallBuilder {
	b.args = args
	return b
}

// Build creates the tool call.
func (b *ToolCallBuilder) Build() llm.ToolCall {
	argsJSON, _ := json.Marshal(b.args)
	return llm.ToolCall{
		ID:   b.id,
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionCall{
			Name:      b.name,
			Arguments: string(argsJSON),
		},
	}
}
