// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/runtime"
)

var runOpts struct {
	File   string
	Output string
	Quiet  bool
}

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Run a request through the team",
	Long: `Run submits a request to the orchestrator and streams the transcript.
When the orchestrator asks a question, or the loop reaches its cycle limit,
the answer is read from standard input. The approved deliverable is printed
at the end, or written to --output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		request, err := readRequest(args, runOpts.File)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var emitter core.EventEmitter = core.NoopEventEmitter{}
		if !runOpts.Quiet && !global.JSON {
			emitter = newTranscript(out)
		}

		ctx := cmd.Context()
		sys, err := runtime.Build(ctx, cfg, runtime.WithEmitter(emitter))
		if err != nil {
			return err
		}
		defer sys.Close(context.WithoutCancel(ctx))

		snap, err := drive(ctx, sys.Controller, request, bufio.NewReader(cmd.InOrStdin()), out)
		if err != nil {
			return WrapRunError(err)
		}
		return report(out, snap, runOpts.Output, global.JSON)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.File, "file", "f", "", "Read the request from a file")
	runCmd.Flags().StringVarP(&runOpts.Output, "output", "o", "", "Write the deliverable to a file")
	runCmd.Flags().BoolVarP(&runOpts.Quiet, "quiet", "q", false, "Do not stream the transcript")
}

func readRequest(args []string, path string) (string, error) {
	if path != "" {
		if len(args) > 0 {
			return "", NewInvalidArgumentError("file", "use either a request argument or --file, not both")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", NewInvalidArgumentError("file", err.Error())
		}
		return strings.TrimSpace(string(data)), nil
	}
	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return "", NewInvalidArgumentError("request", "a request is required")
	}
	return request, nil
}

// session is the part of the controller the CLI drives.
type session interface {
	Submit(ctx context.Context, request string) error
	Answer(ctx context.Context, answer string) error
	Snapshot() core.Snapshot
}

// drive submits request and keeps answering pending questions from in until
// the run leaves the waiting status. EOF on in stops with the run suspended.
func drive(ctx context.Context, s session, request string, in *bufio.Reader, out io.Writer) (core.Snapshot, error) {
	if err := s.Submit(ctx, request); err != nil {
		return s.Snapshot(), err
	}
	for {
		snap := s.Snapshot()
		if snap.Status != core.StatusWaitingForHuman {
			return snap, nil
		}
		fmt.Fprintf(out, "\n%s %s\n%s ", color.New(color.FgYellow, color.Bold).Sprint("?"), snap.PendingQuestion, color.CyanString(">"))
		line, err := in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" {
			if err != nil {
				return snap, nil
			}
			continue
		}
		if err := s.Answer(ctx, answer); err != nil {
			return s.Snapshot(), err
		}
	}
}

func report(out io.Writer, snap core.Snapshot, outputPath string, asJSON bool) error {
	if outputPath != "" && snap.Deliverable != "" {
		if err := os.WriteFile(outputPath, []byte(snap.Deliverable+"\n"), 0o644); err != nil {
			return NewInvalidArgumentError("output", err.Error())
		}
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	switch snap.Status {
	case core.StatusCompleted:
		fmt.Fprintf(out, "\n%s\n\n", color.New(color.FgGreen, color.Bold).Sprint("Deliverable"))
		if outputPath != "" {
			fmt.Fprintf(out, "written to %s\n", outputPath)
		} else {
			fmt.Fprintln(out, snap.Deliverable)
		}
	case core.StatusWaitingForHuman:
		fmt.Fprintf(out, "\n%s run suspended waiting for an answer\n", color.YellowString("!"))
	default:
		fmt.Fprintf(out, "\nstatus: %s (cycle %d/%d)\n", snap.Status, snap.Cycle, snap.MaxCycles)
	}
	return nil
}

var rolePalette = []color.Attribute{color.FgCyan, color.FgMagenta, color.FgBlue, color.FgGreen, color.FgYellow}

// transcript prints streamed role output. Chunks of concurrent tasks are
// buffered per role and flushed as whole messages so they do not interleave.
type transcript struct {
	out io.Writer

	mu      sync.Mutex
	colors  map[string]color.Attribute
	pending map[string]bool
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out, colors: map[string]color.Attribute{}, pending: map[string]bool{}}
}

func (t *transcript) Emit(_ context.Context, ev core.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case core.EventRoleThinking:
		if busy, _ := ev.Payload["thinking"].(bool); busy && !t.pending[ev.Role] {
			t.pending[ev.Role] = true
			fmt.Fprintf(t.out, "%s %s\n", t.color(ev.Role).Sprintf("[%s]", ev.Role), color.HiBlackString("thinking…"))
		}
	case core.EventRoleMessage:
		delete(t.pending, ev.Role)
		text, _ := ev.Payload["text"].(string)
		if strings.TrimSpace(text) == "" {
			return
		}
		fmt.Fprintf(t.out, "%s\n%s\n\n", t.color(ev.Role, color.Bold).Sprintf("## %s", ev.Role), text)
	case core.EventPhaseChanged:
		fmt.Fprintf(t.out, "%s %v\n", color.HiBlackString("phase:"), ev.Payload["phase"])
	case core.EventError:
		fmt.Fprintf(t.out, "%s %v: %v\n", color.RedString("error"), ev.Payload["code"], ev.Payload["message"])
	}
}

func (t *transcript) color(role string, extra ...color.Attribute) *color.Color {
	attr, ok := t.colors[role]
	if !ok {
		attr = rolePalette[len(t.colors)%len(rolePalette)]
		t.colors[role] = attr
	}
	return color.New(append([]color.Attribute{attr}, extra...)...)
}
