package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/agis/pkg/llm"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolDefinition converts an MCP tool into an LLM function tool definition.
func ToolDefinition(tool mcp.Tool) llm.Tool {
	var params any = tool.InputSchema
	if tool.RawInputSchema != nil {
		params = tool.RawInputSchema
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		},
	}
}

// ToolDefinitions converts MCP tools to LLM function tool definitions.
func ToolDefinitions(tools []mcp.Tool) []llm.Tool {
	defs := make([]llm.Tool, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, ToolDefinition(tool))
	}
	return defs
}

// DecodeArguments normalizes tool-call arguments into a map and checks the
// fields the tool schema marks as required. Accepted inputs are a JSON
// object encoded as a string or bytes, a map, or any JSON-marshalable value.
func DecodeArguments(tool mcp.Tool, input any) (map[string]any, error) {
	args, err := normalizeToolArgs(input)
	if err != nil {
		return nil, err
	}
	if err := validateRequiredArgs(tool, args); err != nil {
		return nil, err
	}
	return args, nil
}

func normalizeToolArgs(input any) (map[string]any, error) {
	switch value := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return value, nil
	case json.RawMessage:
		return decodeObject(value)
	case []byte:
		return decodeObject(value)
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return map[string]any{}, nil
		}
		return decodeObject([]byte(trimmed))
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("tool args: unsupported type %T", input)
		}
		return decodeObject(encoded)
	}
}

func decodeObject(data []byte) (map[string]any, error) {
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("tool args: invalid JSON: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return decoded, nil
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		v, ok := args[key]
		if !ok || v == nil {
			return fmt.Errorf("tool args: missing required field %q", key)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return fmt.Errorf("tool args: required field %q is empty", key)
		}
	}
	return nil
}
