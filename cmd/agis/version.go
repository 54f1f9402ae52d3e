package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jllopis/agis/pkg/runtime"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agis version %s\n", runtime.Version)
	},
}
