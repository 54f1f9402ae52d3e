// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"github.com/jllopis/agis/pkg/llm"
	agismcp "github.com/jllopis/agis/pkg/mcp"
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names understood by the dispatcher.
const (
	ToolInvoke         = "invoke"
	ToolInvokeParallel = "invoke_parallel"
	ToolConsult        = "consult"
	ToolReview         = "review"
	ToolAddMember      = "add_member"
	ToolAskHuman       = "ask_human"
	ToolComplete       = "complete"
)

var vocabulary = []mcp.Tool{
	mcp.NewTool(ToolInvoke,
		mcp.WithDescription("Assign a task to one team member and wait for the result."),
		mcp.WithString("agent_alias", mcp.Required(), mcp.Description("Alias of the role that will do the work")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Self-contained task description")),
	),
	mcp.NewTool(ToolInvokeParallel,
		mcp.WithDescription("Assign several independent tasks at once. All of them run concurrently."),
		mcp.WithArray("invocations", mcp.Required(),
			mcp.Description("One entry per task"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_alias": map[string]any{"type": "string"},
					"query":       map[string]any{"type": "string"},
				},
				"required": []string{"agent_alias", "query"},
			}),
		),
	),
	mcp.NewTool(ToolConsult,
		mcp.WithDescription("Let one role ask another role a question."),
		mcp.WithString("from_alias", mcp.Required(), mcp.Description("Role asking the question")),
		mcp.WithString("to_alias", mcp.Required(), mcp.Description("Role answering the question")),
		mcp.WithString("query", mcp.Required()),
	),
	mcp.NewTool(ToolReview,
		mcp.WithDescription("Ask a role to critically review the work of another role."),
		mcp.WithString("reviewer_alias", mcp.Required()),
		mcp.WithString("target_alias", mcp.Required()),
		mcp.WithString("query", mcp.Required(), mcp.Description("What the reviewer should focus on")),
	),
	mcp.NewTool(ToolAddMember,
		mcp.WithDescription("Add a role from the directory to the active team."),
		mcp.WithString("agent_alias", mcp.Required()),
		mcp.WithString("reason", mcp.Required(), mcp.Description("Why the team needs this role")),
	),
	mcp.NewTool(ToolAskHuman,
		mcp.WithDescription("Stop and ask the user a question. Nothing else runs until the user answers."),
		mcp.WithString("question", mcp.Required()),
	),
	mcp.NewTool(ToolComplete,
		mcp.WithDescription("Declare the mission complete and hand the final report to leadership review."),
		mcp.WithString("final_report", mcp.Required(), mcp.Description("Complete final report in markdown")),
	),
}

// Vocabulary returns the MCP declarations of the orchestrator tools.
func Vocabulary() []mcp.Tool {
	out := make([]mcp.Tool, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Tools returns the vocabulary as function declarations for the gateway.
func Tools() []llm.Tool {
	return agismcp.ToolDefinitions(vocabulary)
}

func lookupTool(name string) (mcp.Tool, bool) {
	for _, t := range vocabulary {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.Tool{}, false
}
