package app

import (
	"os"
	"testing"

	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. It returns the
// app with buffers capturing its output and error streams.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	outBuf := &testutil.SafeBuffer{}
	errBuf := &testutil.SafeBuffer{}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.Workdir == "" {
		cfg.Workdir = t.TempDir()
	}
	testApp := NewApp(outBuf, errBuf, cfg, modules...)

	t.Cleanup(func() {
		if os.Getenv("CHAINRUN_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), errBuf.String())
		}
	})

	return testApp, outBuf, errBuf
}
