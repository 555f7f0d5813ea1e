package eisn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/testutil"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestEisn(t *testing.T) {
	t.Parallel()
	now := time.Now()

	testCases := []struct {
		name     string
		srcAge   time.Duration
		dstAge   time.Duration
		noDst    bool
		executed bool
	}{
		{name: "source newer", srcAge: time.Minute, dstAge: time.Hour, executed: true},
		{name: "destination newer", srcAge: time.Hour, dstAge: time.Minute, executed: false},
		{name: "destination missing", srcAge: time.Hour, noDst: true, executed: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			dir := t.TempDir()
			touch(t, filepath.Join(dir, "Program.java"), now.Add(-tc.srcAge))
			if !tc.noDst {
				touch(t, filepath.Join(dir, "Program.class"), now.Add(-tc.dstAge))
			}
			runner := &testutil.FakeRunner{}
			runner.Respond("javac Program.java", "", "", nil)
			reg := registry.New().Load(&Module{Runner: runner, Dir: dir})
			fn, _ := reg.Lookup("eisn")

			// --- Act ---
			got, err := command.Call(context.Background(), fn, []any{"Program.java", "Program.class", "javac Program.java"})

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"isCommandExecuted": tc.executed}, got)
			if tc.executed {
				assert.Equal(t, []string{"javac Program.java"}, runner.Lines())
				assert.Equal(t, []string{dir}, runner.Dirs())
			} else {
				assert.Empty(t, runner.Lines())
			}
		})
	}
}

func TestEisn_Failures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.src"), time.Now())
	runner := &testutil.FakeRunner{}
	runner.Respond("build", "", "compile error", errors.New("exit status 2"))
	reg := registry.New().Load(&Module{Runner: runner, Dir: dir})
	fn, _ := reg.Lookup("eisn")
	ctx := context.Background()

	_, err := command.Call(ctx, fn, []any{"missing.src", "a.out", "build"})
	assert.Error(t, err, "missing source")

	_, err = command.Call(ctx, fn, []any{"a.src", "a.out", "build"})
	assert.ErrorContains(t, err, "exit status 2")

	_, err = command.Call(ctx, fn, []any{"a.src"})
	assert.Error(t, err)
}
