// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides the Claude backend for the remote call gateway.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jllopis/agis/pkg/llm"
)

// DefaultModel is used when neither the request nor the provider name a model.
const DefaultModel = "claude-sonnet-4-20250514"

// Provider implements llm.StreamingProvider for the Anthropic API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxTokens sets the maximum tokens for responses.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) {
		p.maxTokens = tokens
	}
}

// New creates a new Anthropic provider. An empty apiKey falls back to
// ANTHROPIC_API_KEY; an empty baseURL keeps the SDK default.
func New(apiKey, baseURL string, opts ...Option) *Provider {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	p := &Provider{
		client:    anthropic.NewClient(reqOpts...),
		model:     DefaultModel,
		maxTokens: 8192,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chat implements llm.Provider by draining the stream.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
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
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	return resp, nil
}

// ChatStream implements llm.StreamingProvider. Text deltas are forwarded as
// they arrive; tool calls are emitted once the message is complete.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	params := p.buildParams(req)
	chunks := make(chan llm.StreamChunk, 100)

	go func() {
		defer close(chunks)

		stream := p.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				chunks <- llm.StreamChunk{Error: err}
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					select {
					case chunks <- llm.StreamChunk{Content: delta.Text}:
					case <-ctx.Done():
						chunks <- llm.StreamChunk{Error: ctx.Err()}
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- llm.StreamChunk{Error: translateError(err)}
			return
		}

		chunks <- finalChunk(&message)
	}()

	return chunks, nil
}

func (p *Provider) buildParams(req llm.ChatRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var systemPrompt string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleSystem {
			systemPrompt = msg.Content
			continue
		}
		messages = append(messages, convertMessage(msg))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertTool(tool))
		}
		params.Tools = tools
	}
	return params
}

func convertMessage(msg llm.Message) anthropic.MessageParam {
	switch msg.Role {
	case llm.RoleAssistant:
		return anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content))
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

func convertTool(tool llm.Tool) anthropic.ToolUnionParam {
	paramsJSON, _ := json.Marshal(tool.Function.Parameters)
	var inputSchema anthropic.ToolInputSchemaParam
	_ = json.Unmarshal(paramsJSON, &inputSchema)

	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Function.Name,
			Description: anthropic.String(tool.Function.Description),
			InputSchema: inputSchema,
		},
	}
}

// finalChunk carries tool calls and usage from the accumulated message.
func finalChunk(message *anthropic.Message) llm.StreamChunk {
	chunk := llm.StreamChunk{
		Done: true,
		Usage: &llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		if block.Type != "tool_use" {
			continue
		}
		argsJSON, _ := json.Marshal(block.Input)
		chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCall{
			ID:   block.ID,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name:      block.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return chunk
}

func translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.APIError{
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("anthropic request failed: %v", err),
			Err:        err,
		}
	}
	return err
}

var _ llm.StreamingProvider = (*Provider)(nil)
