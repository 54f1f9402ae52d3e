package main

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
)

func init() {
	color.NoColor = true
}

type scriptedSession struct {
	snap      core.Snapshot
	questions []string
	answers   []string
	submitErr error
}

func (s *scriptedSession) Submit(context.Context, string) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	s.next()
	return nil
}

func (s *scriptedSession) Answer(_ context.Context, answer string) error {
	s.answers = append(s.answers, answer)
	s.next()
	return nil
}

func (s *scriptedSession) next() {
	if len(s.questions) == 0 {
		s.snap = core.Snapshot{Status: core.StatusCompleted, Deliverable: "final plan"}
		return
	}
	s.snap = core.Snapshot{Status: core.StatusWaitingForHuman, PendingQuestion: s.questions[0]}
	s.questions = s.questions[1:]
}

func (s *scriptedSession) Snapshot() core.Snapshot { return s.snap }

func TestDriveAnswersQuestions(t *testing.T) {
	s := &scriptedSession{questions: []string{"Which market?", "Budget?"}}
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("\nEurope\n10k\n"))

	snap, err := drive(context.Background(), s, "launch", in, &out)
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if snap.Status != core.StatusCompleted {
		t.Fatalf("expected completion, got %s", snap.Status)
	}
	if strings.Join(s.answers, "|") != "Europe|10k" {
		t.Errorf("unexpected answers %v", s.answers)
	}
	if !strings.Contains(out.String(), "Which market?") {
		t.Errorf("question not printed: %s", out.String())
	}
}

func TestDriveStopsOnEOF(t *testing.T) {
	s := &scriptedSession{questions: []string{"Which market?"}}
	snap, err := drive(context.Background(), s, "launch", bufio.NewReader(strings.NewReader("")), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if snap.Status != core.StatusWaitingForHuman {
		t.Errorf("expected suspended run, got %s", snap.Status)
	}
}

func TestDriveSubmitError(t *testing.T) {
	s := &scriptedSession{submitErr: errors.New(errors.CodeAuth, "denied", nil)}
	_, err := drive(context.Background(), s, "launch", bufio.NewReader(strings.NewReader("")), &bytes.Buffer{})
	if errors.CodeOf(err) != errors.CodeAuth {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
	if hint := WrapRunError(err).Hint; !strings.Contains(hint, "api_key") {
		t.Errorf("unexpected hint %q", hint)
	}
}

func TestReadRequest(t *testing.T) {
	if got, err := readRequest([]string{"launch", "a", "product"}, ""); err != nil || got != "launch a product" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := readRequest(nil, ""); err == nil {
		t.Error("expected error for empty request")
	}

	path := filepath.Join(t.TempDir(), "request.txt")
	if err := os.WriteFile(path, []byte("  from file \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := readRequest(nil, path); err != nil || got != "from file" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := readRequest([]string{"x"}, path); err == nil {
		t.Error("expected error for argument plus file")
	}
}

func TestReportWritesDeliverable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	var out bytes.Buffer
	snap := core.Snapshot{Status: core.StatusCompleted, Deliverable: "final plan"}
	if err := report(&out, snap, path, false); err != nil {
		t.Fatalf("report: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "final plan\n" {
		t.Errorf("unexpected file %q (%v)", data, err)
	}
	if !strings.Contains(out.String(), "written to") {
		t.Errorf("unexpected output %s", out.String())
	}
}

func TestTranscript(t *testing.T) {
	var out bytes.Buffer
	tr := newTranscript(&out)
	ctx := context.Background()

	tr.Emit(ctx, core.Event{Type: core.EventRoleThinking, Role: "analyst", Payload: map[string]any{"thinking": true}})
	tr.Emit(ctx, core.Event{Type: core.EventRoleThinking, Role: "analyst", Payload: map[string]any{"thinking": true}})
	tr.Emit(ctx, core.Event{Type: core.EventRoleChunk, Role: "analyst", Payload: map[string]any{"text": "partial"}})
	tr.Emit(ctx, core.Event{Type: core.EventRoleMessage, Role: "analyst", Payload: map[string]any{"text": "TAM is large"}})
	tr.Emit(ctx, core.Event{Type: core.EventError, Payload: map[string]any{"code": "SERVER_ERROR", "message": "overloaded"}})

	got := out.String()
	if strings.Count(got, "thinking") != 1 {
		t.Errorf("thinking must be printed once:\n%s", got)
	}
	if strings.Contains(got, "partial") {
		t.Errorf("chunks must not be printed:\n%s", got)
	}
	if !strings.Contains(got, "## analyst\nTAM is large") || !strings.Contains(got, "SERVER_ERROR: overloaded") {
		t.Errorf("unexpected transcript:\n%s", got)
	}
}

func TestWriteErrorJSON(t *testing.T) {
	var out bytes.Buffer
	writeError(&out, stderrors.New("boom"), true)
	if !strings.Contains(out.String(), `"code":"UNKNOWN"`) {
		t.Errorf("unexpected json error %s", out.String())
	}
}

func TestConfigArgs(t *testing.T) {
	g := globalFlags{ConfigPath: "agis.yaml", Profile: "dev", Sets: []string{"llm.provider=mock", "orchestration.max_cycles=5"}}
	got := strings.Join(g.configArgs(), " ")
	want := "--config agis.yaml --profile dev --set llm.provider=mock --set orchestration.max_cycles=5"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
