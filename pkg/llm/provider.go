// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the provider-neutral types used to talk to a
// generative-language service.
package llm

import (
	"context"
	"fmt"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolType represents the type of tool.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
)

// FunctionDef defines a function tool.
type FunctionDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters"` // JSON Schema
}

// Tool represents a tool available to the LLM.
type Tool struct {
	Type     ToolType    `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionCall represents a call to a function tool.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string containing arguments
}

// ToolCall represents a request from the LLM to call a tool.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is a single unit of communication.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Attachment is a file sent alongside the user message.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Media is an inline generated part returned by the service (images, audio).
type Media struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []Tool       `json:"tools,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// EnableCapabilities turns on the service-side web search and code
	// execution tools next to any declared function tools.
	EnableCapabilities bool `json:"enable_capabilities,omitempty"`
	// ThinkingBudget caps reasoning tokens. Zero leaves the service default.
	ThinkingBudget int `json:"thinking_budget,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Media     []Media    `json:"media,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one increment of a streamed response.
type StreamChunk struct {
	Content   string
	ToolCalls []ToolCall
	Media     []Media
	Usage     *Usage
	Done      bool
	Error     error
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// StreamingProvider streams responses chunk by chunk. The channel is closed
// when the stream ends; a chunk with Error set terminates the stream.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// APIError is the transport failure shape providers translate their SDK
// errors into, so callers can classify without importing SDKs.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("llm api error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("llm api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the SDK error.
func (e *APIError) Unwrap() error {
	return e.Err
}
