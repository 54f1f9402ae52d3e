package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/agis/pkg/core"
)

type fakeController struct {
	snap      core.Snapshot
	submitted []string
	answered  []string
	resets    int
	err       error
}

func (f *fakeController) Submit(_ context.Context, request string) error {
	f.submitted = append(f.submitted, request)
	if f.err != nil {
		return f.err
	}
	f.snap.Status = core.StatusWaitingForHuman
	f.snap.PendingQuestion = "Which market?"
	return nil
}

func (f *fakeController) Answer(_ context.Context, answer string) error {
	f.answered = append(f.answered, answer)
	if f.err != nil {
		return f.err
	}
	f.snap.Status = core.StatusCompleted
	f.snap.PendingQuestion = ""
	f.snap.Deliverable = "the plan"
	return nil
}

func (f *fakeController) Reset(context.Context) error {
	f.resets++
	return f.err
}

func (f *fakeController) Snapshot() core.Snapshot { return f.snap }

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected a single content item, got %+v", res)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestServerSubmitAndAnswer(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer("agis", "test", ctrl)
	ctx := context.Background()

	res, err := s.handleSubmit(ctx, callRequest(ToolSubmitRequest, map[string]any{"request": "launch a product"}))
	if err != nil {
		t.Fatalf("handleSubmit: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var snap core.Snapshot
	if err := json.Unmarshal([]byte(resultText(t, res)), &snap); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if snap.Status != core.StatusWaitingForHuman || snap.PendingQuestion != "Which market?" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	res, _ = s.handleDeliverable(ctx, callRequest(ToolDeliverable, nil))
	if !res.IsError {
		t.Errorf("expected an error before a deliverable exists")
	}

	res, _ = s.handleAnswer(ctx, callRequest(ToolAnswerHuman, map[string]any{"answer": "Europe"}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if len(ctrl.answered) != 1 || ctrl.answered[0] != "Europe" {
		t.Errorf("answer not forwarded: %v", ctrl.answered)
	}

	res, _ = s.handleDeliverable(ctx, callRequest(ToolDeliverable, nil))
	if got := resultText(t, res); got != "the plan" {
		t.Errorf("unexpected deliverable %q", got)
	}
}

func TestServerMissingArgument(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer("agis", "test", ctrl)

	res, err := s.handleSubmit(context.Background(), callRequest(ToolSubmitRequest, map[string]any{}))
	if err != nil {
		t.Fatalf("handleSubmit: %v", err)
	}
	if !res.IsError {
		t.Errorf("expected a tool error")
	}
	if len(ctrl.submitted) != 0 {
		t.Errorf("controller must not be called")
	}
}

func TestServerControllerFailureIsToolError(t *testing.T) {
	ctrl := &fakeController{err: stderrors.New("busy")}
	s := NewServer("agis", "test", ctrl)
	ctx := context.Background()

	res, err := s.handleAnswer(ctx, callRequest(ToolAnswerHuman, map[string]any{"answer": "yes"}))
	if err != nil {
		t.Fatalf("controller failures must not be protocol errors: %v", err)
	}
	if !res.IsError || resultText(t, res) != "busy" {
		t.Errorf("unexpected result %+v", res)
	}

	res, _ = s.handleReset(ctx, callRequest(ToolReset, nil))
	if !res.IsError || ctrl.resets != 1 {
		t.Errorf("expected failed reset, got %+v", res)
	}
}

func TestServerStatus(t *testing.T) {
	ctrl := &fakeController{snap: core.Snapshot{Phase: core.PhaseExecution, Cycle: 3, MaxCycles: 50, Team: []string{"analyst"}}}
	s := NewServer("agis", "test", ctrl)

	res, err := s.handleStatus(context.Background(), callRequest(ToolStatus, nil))
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	var snap core.Snapshot
	if err := json.Unmarshal([]byte(resultText(t, res)), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Cycle != 3 || snap.Phase != core.PhaseExecution || len(snap.Team) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if s.MCPServer() == nil {
		t.Errorf("expected underlying server")
	}
}
