package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeintel/codeintel/internal/daemon"
	"github.com/codeintel/codeintel/internal/logging"
	"github.com/codeintel/codeintel/internal/output"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the resident query daemon",
		Long: `The daemon holds the embedding model and project stores in memory and
answers queries over a local socket, so repeated searches skip model
startup entirely.`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonListCmd())
	cmd.AddCommand(newDaemonLogsCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool
	var socketPath, pidPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon (backgrounded unless -f)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := daemon.DefaultConfig()
			if socketPath != "" {
				cfg.SocketPath = socketPath
			}
			if pidPath != "" {
				cfg.PIDPath = pidPath
			}
			if foreground {
				return daemonForeground(cmd, cfg)
			}
			return daemonBackground(cmd, cfg, socketPath, pidPath)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Stay attached instead of daemonizing")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Listen on this socket path")
	cmd.Flags().StringVar(&pidPath, "pid-file", "", "Record the PID at this path")
	_ = cmd.Flags().MarkHidden("socket")
	_ = cmd.Flags().MarkHidden("pid-file")
	return cmd
}

// daemonForeground runs the daemon attached to the terminal, logging to
// both the log file and stderr.
func daemonForeground(cmd *cobra.Command, cfg daemon.Config) error {
	out := output.New(cmd.OutOrStdout())

	if daemon.NewClient(cfg).IsRunning() {
		out.Status("", "A daemon is already listening on "+cfg.SocketPath)
		return nil
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = "debug"
	logCfg.WriteToStderr = true
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	out.Status("", "Serving on "+cfg.SocketPath+" (Ctrl+C to stop)")
	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		return err
	}
	return d.Start(cmd.Context())
}

// daemonBackground re-executes this binary detached and waits until the
// socket answers.
func daemonBackground(cmd *cobra.Command, cfg daemon.Config, socketPath, pidPath string) error {
	out := output.New(cmd.OutOrStdout())
	client := daemon.NewClient(cfg)

	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"daemon", "start", "--foreground"}
	if socketPath != "" {
		args = append(args, "--socket", socketPath)
	}
	if pidPath != "" {
		args = append(args, "--pid-file", pidPath)
	}

	child := exec.Command(exe, args...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-exited:
			return fmt.Errorf("daemon exited during startup: %v", err)
		case <-time.After(100 * time.Millisecond):
		}
		if client.IsRunning() {
			out.Success(fmt.Sprintf("Daemon started (pid %d)", child.Process.Pid))
			return nil
		}
	}
	return fmt.Errorf("daemon did not come up within 2s; check %s", logging.DefaultLogPath())
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			pidFile := daemon.NewPIDFile(daemon.DefaultConfig().PIDPath)

			if !pidFile.IsRunning() {
				out.Status("", "Daemon is not running")
				return nil
			}
			pid, _ := pidFile.Read()

			if err := pidFile.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon: %w", err)
			}
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				if !pidFile.IsRunning() {
					out.Success(fmt.Sprintf("Daemon stopped (was pid %d)", pid))
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}

			// graceful shutdown stalled; escalate
			if err := pidFile.Signal(syscall.SIGKILL); err != nil {
				return fmt.Errorf("kill daemon: %w", err)
			}
			out.Success("Daemon killed")
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon liveness, uptime, and loaded projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStatus(cmd.Context(), cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, asJSON bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()
	client := daemon.NewClient(cfg)

	emit := func(status daemon.StatusResult) error {
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		if !status.Running {
			out.Status("", "Daemon is not running; start it with: codeintel daemon start")
			return nil
		}
		out.Status("", fmt.Sprintf("Running: pid %d, up %s", status.PID, status.Uptime))
		out.Status("", fmt.Sprintf("Embedder: %s (%s)", status.EmbedderType, status.EmbedderStatus))
		out.Status("", fmt.Sprintf("Projects loaded: %d", status.ProjectsLoaded))
		out.Status("", "Socket: "+cfg.SocketPath)
		return nil
	}

	if !client.IsRunning() {
		return emit(daemon.StatusResult{Running: false})
	}
	status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	return emit(*status)
}

func newDaemonListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running managed daemons",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			statuses, err := daemon.NewManager().List()
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				out.Status("", "No managed daemons running")
				return nil
			}
			for _, s := range statuses {
				out.Status("", fmt.Sprintf("%s  pid %d  up since %s  %s",
					s.Name, s.PID, s.StartedAt.Format(time.RFC3339), s.RootPath))
			}
			return nil
		},
	}
}

func newDaemonLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show a managed daemon's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := daemon.NewManager().Logs(args[0], tail)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 100, "Trailing lines to show (0 for all)")
	return cmd
}
