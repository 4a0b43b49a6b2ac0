package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup. It mirrors testing.T.Chdir,
// which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(old))
	})
}

// TestAcquireAndRelease verifies the marker lifecycle.
func TestAcquireAndRelease(t *testing.T) {
	chdir(t, t.TempDir())

	release, err := Acquire(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(MarkerFilename)
	require.NoError(t, err)

	release()

	_, err = os.Stat(MarkerFilename)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestAcquireRefusesFreshMarker verifies a second acquisition fails while
// the marker is fresh.
func TestAcquireRefusesFreshMarker(t *testing.T) {
	chdir(t, t.TempDir())

	release, err := Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = Acquire(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

// TestAcquireRecoversStaleMarker verifies a marker older than its lifetime
// is cleaned up and acquisition proceeds.
func TestAcquireRecoversStaleMarker(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, os.WriteFile(MarkerFilename, nil, 0o600))

	stale := time.Now().Add(-2 * markerLifetime)
	require.NoError(t, os.Chtimes(MarkerFilename, stale, stale))

	release, err := Acquire(context.Background())
	require.NoError(t, err)

	release()
}
