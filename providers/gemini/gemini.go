// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides the Google Gemini backend for the remote call gateway.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jllopis/agis/pkg/llm"
	"google.golang.org/genai"
)

// DefaultModel is used when neither the request nor the provider name a model.
const DefaultModel = "gemini-2.5-pro"

// Provider implements llm.StreamingProvider for the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
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

// New creates a new Gemini provider.
// The API key is read from GOOGLE_API_KEY or GEMINI_API_KEY when apiKey is empty.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p := &Provider{
		client: client,
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Client exposes the underlying SDK client, shared with the embedder.
func (p *Provider) Client() *genai.Client {
	return p.client
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
		resp.Media = append(resp.Media, chunk.Media...)
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	return resp, nil
}

// ChatStream implements llm.StreamingProvider.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, systemInstruction := convertMessages(req.Messages, req.Attachments)
	config := buildConfig(req, systemInstruction)

	chunks := make(chan llm.StreamChunk, 100)

	go func() {
		defer close(chunks)

		iter := p.client.Models.GenerateContentStream(ctx, model, contents, config)
		iter(func(resp *genai.GenerateContentResponse, err error) bool {
			if err != nil {
				chunks <- llm.StreamChunk{Error: translateError(err)}
				return false
			}

			chunk := convertChunk(resp)
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				chunks <- llm.StreamChunk{Error: ctx.Err()}
				return false
			}
		})
	}()

	return chunks, nil
}

// Close is a no-op as the Gemini client doesn't require explicit closing.
func (p *Provider) Close() error {
	return nil
}

func buildConfig(req llm.ChatRequest, systemInstruction string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	if req.ThinkingBudget > 0 {
		budget := int32(req.ThinkingBudget)
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	if len(req.Tools) > 0 {
		config.Tools = append(config.Tools, &genai.Tool{FunctionDeclarations: convertTools(req.Tools)})
	}
	if req.EnableCapabilities {
		config.Tools = append(config.Tools,
			&genai.Tool{GoogleSearch: &genai.GoogleSearch{}},
			&genai.Tool{CodeExecution: &genai.ToolCodeExecution{}},
		)
	}
	return config
}

// convertMessages converts messages to Gemini contents. Attachments ride on
// the last user message.
func convertMessages(messages []llm.Message, attachments []llm.Attachment) ([]*genai.Content, string) {
	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))
	lastUser := -1

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = msg.Content
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
			lastUser = len(contents) - 1
		case llm.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			contents = append(contents, content)
		}
	}

	if len(attachments) > 0 {
		if lastUser < 0 {
			contents = append(contents, &genai.Content{Role: "user"})
			lastUser = len(contents) - 1
		}
		for _, att := range attachments {
			contents[lastUser].Parts = append(contents[lastUser].Parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: att.MIMEType, Data: att.Data},
			})
		}
	}

	return contents, systemInstruction
}

// convertTools converts function tools to Gemini declarations.
func convertTools(tools []llm.Tool) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  convertSchema(tool.Function.Parameters),
		})
	}
	return declarations
}

// convertSchema maps a JSON Schema document onto genai.Schema, which expects
// upper-case OpenAPI type names.
func convertSchema(params any) *genai.Schema {
	if params == nil {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return schemaFromMap(doc)
}

func schemaFromMap(doc map[string]any) *genai.Schema {
	schema := &genai.Schema{}
	if t, ok := doc["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := doc["description"].(string); ok {
		schema.Description = d
	}
	if props, ok := doc["properties"].(map[string]any); ok && len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if m, ok := prop.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(m)
			}
		}
	}
	if req, ok := doc["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := doc["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	return schema
}

func convertChunk(resp *genai.GenerateContentResponse) llm.StreamChunk {
	chunk := llm.StreamChunk{}
	if resp == nil {
		return chunk
	}

	if resp.UsageMetadata != nil {
		chunk.Usage = &llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		return chunk
	}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				chunk.Content += part.Text
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				chunk.Media = append(chunk.Media, llm.Media{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				})
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCall{
					ID:   part.FunctionCall.Name,
					Type: llm.ToolTypeFunction,
					Function: llm.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsJSON),
					},
				})
			}
		}
	}
	if candidate.FinishReason != "" {
		chunk.Done = true
	}
	return chunk
}

// translateError maps SDK errors onto llm.APIError for classification.
func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.APIError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &llm.APIError{StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Err: err}
	}
	return err
}

var _ llm.StreamingProvider = (*Provider)(nil)
