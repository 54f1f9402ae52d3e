// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/graph"
)

var graphOpts struct {
	RunID  string
	Actor  string
	Type   string
	Limit  int
	Output string
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show persisted interaction graph events",
	Long: `graph reads the events recorded in the sqlite graph store (graph.driver
must be sqlite) and prints them as a table, a mermaid or dot diagram, or JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Graph.Driver != "sqlite" {
			return NewInvalidArgumentError("graph.driver", "graph history requires the sqlite driver")
		}
		store, err := graph.OpenSQLite(cfg.Graph.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context(), graph.Filter{
			RunID: graphOpts.RunID,
			Actor: graphOpts.Actor,
			Type:  core.EdgeType(graphOpts.Type),
			Limit: graphOpts.Limit,
		})
		if err != nil {
			return err
		}

		output := graphOpts.Output
		if global.JSON {
			output = "json"
		}
		return writeGraph(cmd.OutOrStdout(), records, output)
	},
}

func init() {
	f := graphCmd.Flags()
	f.StringVar(&graphOpts.RunID, "run", "", "Only events of this run")
	f.StringVar(&graphOpts.Actor, "actor", "", "Only events from or to this actor")
	f.StringVar(&graphOpts.Type, "type", "", "Only events of this type (invoke, consult, review, report, instruction, add_member)")
	f.IntVar(&graphOpts.Limit, "limit", 0, "Maximum number of events")
	f.StringVarP(&graphOpts.Output, "output", "o", "table", "Output format: table, mermaid, dot, json")
}

func writeGraph(w io.Writer, records []graph.Record, output string) error {
	switch output {
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tRUN\tFROM\tTO\tTYPE\tLABEL")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Timestamp.Format(time.RFC3339), shortID(r.RunID), r.From, r.To, r.Type, r.Label)
		}
		return tw.Flush()
	case "mermaid":
		_, err := io.WriteString(w, toMermaid(records))
		return err
	case "dot":
		_, err := io.WriteString(w, toDot(records))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return NewInvalidArgumentError("output", fmt.Sprintf("unknown output format %q; use table, mermaid, dot, or json", output))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type edgeKey struct {
	from, to string
	typ      core.EdgeType
}

// aggregate collapses repeated interactions into one weighted edge.
func aggregate(records []graph.Record) ([]edgeKey, map[edgeKey]int, []string) {
	counts := map[edgeKey]int{}
	var order []edgeKey
	actors := map[string]bool{}
	for _, r := range records {
		k := edgeKey{r.From, r.To, r.Type}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
		actors[r.From] = true
		actors[r.To] = true
	}
	names := make([]string, 0, len(actors))
	for a := range actors {
		names = append(names, a)
	}
	sort.Strings(names)
	return order, counts, names
}

func edgeLabel(k edgeKey, n int) string {
	if n > 1 {
		return fmt.Sprintf("%s x%d", k.typ, n)
	}
	return string(k.typ)
}

func toMermaid(records []graph.Record) string {
	order, counts, actors := aggregate(records)
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, a := range actors {
		sb.WriteString(fmt.Sprintf("    %s[%s]\n", a, a))
	}
	for _, k := range order {
		sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", k.from, edgeLabel(k, counts[k]), k.to))
	}
	if containsActor(actors, core.ExternalActor) {
		sb.WriteString(fmt.Sprintf("    style %s fill:#90EE90\n", core.ExternalActor))
	}
	return sb.String()
}

func toDot(records []graph.Record) string {
	order, counts, actors := aggregate(records)
	var sb strings.Builder
	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n")
	for _, a := range actors {
		attrs := fmt.Sprintf("label=%q", a)
		if a == core.ExternalActor {
			attrs += ", style=\"rounded,filled\", fillcolor=\"#90EE90\""
		}
		sb.WriteString(fmt.Sprintf("    %q [%s];\n", a, attrs))
	}
	for _, k := range order {
		sb.WriteString(fmt.Sprintf("    %q -> %q [label=%q];\n", k.from, k.to, edgeLabel(k, counts[k])))
	}
	sb.WriteString("}\n")
	return sb.String()
}

func containsActor(actors []string, name string) bool {
	i := sort.SearchStrings(actors, name)
	return i < len(actors) && actors[i] == name
}
