// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/llm"
	agismcp "github.com/jllopis/agis/pkg/mcp"
)

// Call is a validated orchestrator decision. The concrete types are Invoke,
// InvokeParallel, Consult, Review, AddMember, AskHuman and Complete.
type Call interface {
	ToolName() string
}

type Invoke struct {
	AgentAlias string `json:"agent_alias"`
	Query      string `json:"query"`
}

// Invocation is one entry of an InvokeParallel batch. Entries are validated
// one by one at dispatch time so a bad entry does not discard the batch.
type Invocation struct {
	AgentAlias string `json:"agent_alias"`
	Query      string `json:"query"`
}

type InvokeParallel struct {
	Invocations []Invocation `json:"invocations"`
}

type Consult struct {
	FromAlias string `json:"from_alias"`
	ToAlias   string `json:"to_alias"`
	Query     string `json:"query"`
}

type Review struct {
	ReviewerAlias string `json:"reviewer_alias"`
	TargetAlias   string `json:"target_alias"`
	Query         string `json:"query"`
}

type AddMember struct {
	AgentAlias string `json:"agent_alias"`
	Reason     string `json:"reason"`
}

type AskHuman struct {
	Question string `json:"question"`
}

type Complete struct {
	FinalReport string `json:"final_report"`
}

func (Invoke) ToolName() string         { return ToolInvoke }
func (InvokeParallel) ToolName() string { return ToolInvokeParallel }
func (Consult) ToolName() string        { return ToolConsult }
func (Review) ToolName() string         { return ToolReview }
func (AddMember) ToolName() string      { return ToolAddMember }
func (AskHuman) ToolName() string       { return ToolAskHuman }
func (Complete) ToolName() string       { return ToolComplete }

// Parse validates a raw tool call against the vocabulary and decodes it into
// its typed variant. The returned error is always an *errors.AgisError with
// CodeInvalidToolCall.
func Parse(tc llm.ToolCall) (Call, error) {
	name := strings.TrimSpace(tc.Function.Name)
	tool, ok := lookupTool(name)
	if !ok {
		return nil, invalidCall(name, "unknown tool", nil)
	}
	args, err := agismcp.DecodeArguments(tool, tc.Function.Arguments)
	if err != nil {
		return nil, invalidCall(name, "malformed arguments", err)
	}

	var call Call
	switch name {
	case ToolInvoke:
		var c Invoke
		err = decode(args, &c)
		call = c
	case ToolInvokeParallel:
		var c InvokeParallel
		err = decode(args, &c)
		if err == nil && len(c.Invocations) == 0 {
			return nil, invalidCall(name, "invocations is empty", nil)
		}
		call = c
	case ToolConsult:
		var c Consult
		err = decode(args, &c)
		call = c
	case ToolReview:
		var c Review
		err = decode(args, &c)
		call = c
	case ToolAddMember:
		var c AddMember
		err = decode(args, &c)
		call = c
	case ToolAskHuman:
		var c AskHuman
		err = decode(args, &c)
		call = c
	case ToolComplete:
		var c Complete
		err = decode(args, &c)
		call = c
	}
	if err != nil {
		return nil, invalidCall(name, "malformed arguments", err)
	}
	return call, nil
}

func decode(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func invalidCall(name, msg string, err error) *errors.AgisError {
	return errors.New(errors.CodeInvalidToolCall, msg, err).WithContext("tool", name)
}
