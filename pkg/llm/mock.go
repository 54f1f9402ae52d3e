// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
)

// MockProvider is a testing implementation of StreamingProvider that always
// answers with the same content.
type MockProvider struct {
	Response  string
	ToolCalls []ToolCall
	Err       error
	ChatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content:   m.Response,
		ToolCalls: m.ToolCalls,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// ChatStream implements StreamingProvider by emitting the Chat response as a
// single chunk.
func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := m.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return StreamResponse(resp), nil
}

// StreamResponse replays a complete response as a closed stream.
func StreamResponse(resp *ChatResponse) <-chan StreamChunk {
	out := make(chan StreamChunk, 2)
	out <- StreamChunk{
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
		Media:     resp.Media,
		Usage:     &resp.Usage,
	}
	out <- StreamChunk{Done: true}
	close(out)
	return out
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

// ChatStream implements StreamingProvider.
func (f *FailingMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	_, err := f.Chat(ctx, req)
	return nil, err
}

var (
	_ StreamingProvider = (*MockProvider)(nil)
	_ StreamingProvider = (*FailingMockProvider)(nil)
)
