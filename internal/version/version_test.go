package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestShort verifies the short form is the bare semantic version.
func TestShort(t *testing.T) {
	t.Parallel()

	require.Equal(t, Version, Short())
}

// TestFull verifies the full form mentions version, commit and build time.
func TestFull(t *testing.T) {
	t.Parallel()

	full := Full()
	require.True(t, strings.Contains(full, Version))
	require.True(t, strings.Contains(full, Commit))
	require.True(t, strings.Contains(full, BuildTime))
}
