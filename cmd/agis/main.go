// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the agis CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/agis/pkg/config"
	"github.com/jllopis/agis/pkg/telemetry"
)

type globalFlags struct {
	ConfigPath string
	Profile    string
	Sets       []string
	JSON       bool
}

var global globalFlags

var rootCmd = &cobra.Command{
	Use:   "agis",
	Short: "Multi-role orchestration over a language model",
	Long: `agis runs a team of model-backed roles under an orchestrator. The
orchestrator delegates work with tool calls, consults specialists in
parallel, escalates to you when it needs an answer, and hands the result to
a leadership chain that audits it and drafts the final deliverable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&global.ConfigPath, "config", "", "Path to config YAML")
	flags.StringVar(&global.Profile, "profile", "", "Config profile overlay (config.<profile>.yaml)")
	flags.StringArrayVar(&global.Sets, "set", nil, "Override a config key (key=value, repeatable)")
	flags.BoolVar(&global.JSON, "json", false, "Machine-readable output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err, global.JSON)
		os.Exit(1)
	}
}

// configArgs renders the global flags in the form config.LoadWithCLI reads.
func (g globalFlags) configArgs() []string {
	var args []string
	if g.ConfigPath != "" {
		args = append(args, "--config", g.ConfigPath)
	}
	if g.Profile != "" {
		args = append(args, "--profile", g.Profile)
	}
	for _, set := range g.Sets {
		args = append(args, "--set", set)
	}
	return args
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithCLI(global.configArgs())
	if err != nil {
		return nil, NewConfigError(err, global.ConfigPath)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
