// codeintel is a local code-intelligence engine: it indexes a source tree
// into embedded chunks plus a symbol/dependency/call graph and answers
// semantic, structural, and hybrid queries.
package main

import (
	"os"

	"github.com/codeintel/codeintel/cmd/codeintel/cmd"
)

func main() {
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}
