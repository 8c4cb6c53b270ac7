package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/internal/index"
)

func newIndexCmd() *cobra.Command {
	var summarizeModel string

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build a new index for a project",
		Long: `Walk the project tree, chunk and embed every indexable file, extract
the symbol/dependency/call graph, and persist it all under the project's
.codeintel directory. Fails if an index already exists; use update to
refresh one, or update --retry to restart a failed build.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runUpdate(cmd.Context(), cmd, path, index.ModeCreate, summarizeModel)
		},
	}

	cmd.Flags().StringVar(&summarizeModel, "summarize", "", "Summarization provider as provider:model (e.g. ollama:qwen2.5-coder)")
	return cmd
}
