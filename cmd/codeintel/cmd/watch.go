package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/internal/index"
	"github.com/codeintel/codeintel/internal/output"
	"github.com/codeintel/codeintel/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var quietMillis int

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Reindex incrementally as files change",
		Long: `Watch the project tree and run an incremental update whenever a burst
of file changes settles. Unchanged files are skipped by content hash, so
each pass costs roughly what the edit touched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(cmd, path, time.Duration(quietMillis)*time.Millisecond)
		},
	}

	cmd.Flags().IntVar(&quietMillis, "quiet", 500, "Quiet period in milliseconds before a batch triggers a reindex")
	return cmd
}

func runWatch(cmd *cobra.Command, path string, quiet time.Duration) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	root, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	// bring the index current before watching
	if err := runUpdate(ctx, cmd, root, index.ModeUpdate, ""); err != nil {
		return err
	}

	w, err := watcher.New(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	defer w.Close()

	out.Status("", fmt.Sprintf("Watching %s (Ctrl+C to stop)", root))

	events := w.Events(ctx)
	watcher.Debounce(ctx, events, quiet, func(batch []watcher.Event) {
		out.Status("", fmt.Sprintf("%d changes, reindexing...", len(batch)))
		if err := runUpdate(ctx, cmd, root, index.ModeUpdate, ""); err != nil {
			out.Error(fmt.Sprintf("reindex failed: %v", err))
		}
	})
	return nil
}
