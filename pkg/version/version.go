// Package version carries the build's identity, stamped at link time.
package version

import (
	"fmt"
	"runtime"
)

// Populated via -ldflags "-X github.com/codeintel/codeintel/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String is the short human form.
func String() string {
	return fmt.Sprintf("codeintel %s (%s)", Version, Commit)
}

// Full includes the build date and toolchain.
func Full() string {
	return fmt.Sprintf("codeintel %s\n  commit: %s\n  built:  %s\n  go:     %s %s/%s",
		Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
