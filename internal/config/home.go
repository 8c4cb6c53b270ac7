package config

import (
	"os"
	"path/filepath"
)

// HomeEnvVar overrides the tool home directory when set.
const HomeEnvVar = "CODEINTEL_HOME"

// HomeDir returns the tool home: $CODEINTEL_HOME if set, otherwise
// ~/.codeintel, falling back to the temp directory when no home directory
// is resolvable.
func HomeDir() string {
	if dir := os.Getenv(HomeEnvVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codeintel")
	}
	return filepath.Join(home, ".codeintel")
}

// DBDir holds one sub-directory per index (meta.json plus tables).
func DBDir() string { return filepath.Join(HomeDir(), "db") }

// CacheDir holds the embedding cache; its lifetime is independent of any
// index.
func CacheDir() string { return filepath.Join(HomeDir(), "cache") }

// PidsDir holds one <index>.json liveness record per running daemon.
func PidsDir() string { return filepath.Join(HomeDir(), "pids") }

// LogsDir holds one <index>.log per daemon.
func LogsDir() string { return filepath.Join(HomeDir(), "logs") }

// SocketsDir holds one <index>.sock listening socket per daemon.
func SocketsDir() string { return filepath.Join(HomeDir(), "sockets") }
