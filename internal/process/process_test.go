package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chainrun/internal/testutil"
)

func TestShellRunner_Success(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), 0o600))
	r := NewShellRunner(nil)

	stdout, _, err := r.Run(context.Background(), "cat marker.txt", dir)

	require.NoError(t, err)
	assert.Equal(t, "here", stdout)
}

func TestShellRunner_FailureCarriesStderr(t *testing.T) {
	t.Parallel()

	diag := &testutil.SafeBuffer{}
	r := NewShellRunner(diag)

	_, stderr, err := r.Run(context.Background(), "echo broken >&2; exit 3", t.TempDir())

	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "broken", perr.Error())
	assert.Equal(t, "broken\n", stderr)
	assert.Equal(t, "broken\n", diag.String(), "stderr is streamed to diagnostics")
}

func TestShellRunner_FailureWithoutStderr(t *testing.T) {
	t.Parallel()

	_, _, err := NewShellRunner(nil).Run(context.Background(), "exit 4", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 4")
}
