package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			if full {
				fmt.Fprintln(cmd.OutOrStdout(), version.Full())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Include commit, date, and toolchain")
	return cmd
}
