package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/modules/core"
)

func TestRun_PrintsResult(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	cfg := &Config{
		Pipeline: `{"ins":"num","do":"{num * num}"}`,
		Inputs:   []string{"10"},
	}
	a, out, logs := SetupAppTest(t, cfg)

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "100\n", out.String())
	assert.Contains(t, logs.String(), "Pipeline finished.")
	assert.Contains(t, logs.String(), "invocation=")
}

func TestRun_StringInputs(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	cfg := &Config{
		Pipeline: `{"ins":["a","b"],"do":"(a, b) -> [$.concat] -> joined","out":"joined"}`,
		Inputs:   []string{"left", "[1,2]"},
	}
	a, out, _ := SetupAppTest(t, cfg)

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "left[1,2]\n", out.String())
}

func TestRun_FailureReport(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	cfg := &Config{
		Pipeline: `{"ins":"x","out":"y","error":"x < 0","errorMessage":"'negative input'","do":"(x) -> {x => x * 10} -> y"}`,
		Inputs:   []string{"-2"},
		LogLevel: "error",
	}
	a, out, errW := SetupAppTest(t, cfg)

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.ErrorIs(t, err, ErrPipelineFailed)
	assert.Empty(t, out.String())

	var report map[string]any
	lines := strings.Split(strings.TrimSpace(errW.String()), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &report))
	assert.Equal(t, true, report["error"])
	assert.Equal(t, "negative input", report["errorMessage"])
	assert.Nil(t, report["result"])
}

func TestRun_CustomModules(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	printed := &strings.Builder{}
	cfg := &Config{Pipeline: "(`hi) -> [$.print] -> greeting"}
	a, _, _ := SetupAppTest(t, cfg, &core.Module{Out: printed})

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "hi\n", printed.String())
	_, ok := a.Registry().Lookup("eisn")
	assert.False(t, ok, "default modules must not load when modules are given")
}

func TestNewApp_DefaultModules(t *testing.T) {
	t.Parallel()
	// --- Arrange & Act ---
	a, _, _ := SetupAppTest(t, &Config{Pipeline: "x"})

	// --- Assert ---
	for _, name := range []string{"print", "env", "http.request", "socketio.request", "eisn", "raise", "map"} {
		fn, ok := a.Registry().Lookup(name)
		require.True(t, ok, "missing %s", name)
		assert.Equal(t, name, fn.Name)
	}
	fn, _ := a.Registry().Lookup("env")
	assert.Equal(t, registry.Continuation, fn.Kind)
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	a, _, logs := SetupAppTest(t, &Config{Pipeline: "x"})
	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	// --- Act ---
	resp, err := http.Get(srv.URL + "/health")

	// --- Assert ---
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, logs.String(), "Health check endpoint hit.")
}

func TestDecodeInputs(t *testing.T) {
	t.Parallel()
	// --- Act ---
	got := decodeInputs([]string{"3", "word", `{"a":true}`, ""})

	// --- Assert ---
	assert.Equal(t, []any{3.0, "word", map[string]any{"a": true}, ""}, got)
}
