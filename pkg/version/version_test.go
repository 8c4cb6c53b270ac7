package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Contains(t, String(), "codeintel")
	assert.Contains(t, String(), Version)
}

func TestFullIncludesToolchain(t *testing.T) {
	full := Full()
	assert.Contains(t, full, Commit)
	assert.Contains(t, full, "go:")
}
