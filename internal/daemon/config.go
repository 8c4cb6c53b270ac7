// Package daemon is the resident query process and its management: a
// line-delimited JSON-RPC server over a Unix socket, the client used to
// reach it, per-instance PID/log/socket bookkeeping, and the manager that
// starts and stops named instances.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeintel/codeintel/internal/config"
)

// Config holds one daemon process's settings.
type Config struct {
	// SocketPath is where the daemon listens.
	SocketPath string

	// PIDPath is the daemon's own liveness file.
	PIDPath string

	// Timeout bounds one client round trip.
	Timeout time.Duration

	// ShutdownGracePeriod is how long shutdown waits for in-flight
	// requests to drain.
	ShutdownGracePeriod time.Duration

	// MaxProjects caps how many projects stay resident; the
	// least-recently-used one is evicted past the cap.
	MaxProjects int
}

// DefaultConfig places the daemon's files under the tool home.
func DefaultConfig() Config {
	home := config.HomeDir()
	return Config{
		SocketPath:          filepath.Join(home, "daemon.sock"),
		PIDPath:             filepath.Join(home, "daemon.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		MaxProjects:         5,
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SocketPath == "":
		return fmt.Errorf("socket path is required")
	case c.PIDPath == "":
		return fmt.Errorf("pid path is required")
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive")
	case c.ShutdownGracePeriod <= 0:
		return fmt.Errorf("shutdown grace period must be positive")
	case c.MaxProjects <= 0:
		return fmt.Errorf("max projects must be positive")
	}
	return nil
}

// EnsureDir creates the directories the socket and PID file live in.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
