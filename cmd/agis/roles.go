package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/agis/pkg/core"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List the role directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := core.DefaultDirectory()
		if cfg.Orchestration.RolesFile != "" {
			if dir, err = core.LoadDirectory(cfg.Orchestration.RolesFile); err != nil {
				return NewConfigError(err, cfg.Orchestration.RolesFile)
			}
		}

		out := cmd.OutOrStdout()
		if global.JSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(dir.Roles())
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ALIAS\tID\tTEAM\tCAPABILITIES")
		for _, r := range dir.Roles() {
			caps := make([]string, len(r.Capabilities))
			for i, c := range r.Capabilities {
				caps[i] = string(c)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Alias, r.ID, r.Team, strings.Join(caps, ","))
		}
		return w.Flush()
	},
}
