package httpreq

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
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

func TestRequest(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"method":"` + r.Method + `","token":"` + r.Header.Get("X-Token") + `","echo":"` + string(body) + `"}`))
	}))
	defer srv.Close()
	reg := registry.New().Load(&Module{Client: NewClient(5 * time.Second)})
	fn, ok := reg.Lookup("http.request")
	require.True(t, ok)
	ctx, _ := testutil.LogContext(t)

	// --- Act ---
	got, err := command.Call(ctx, fn, []any{"post", srv.URL, "hi", map[string]any{"X-Token": "t1"}})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"status_code": 201.0,
		"status":      "201 Created",
		"body":        map[string]any{"method": "POST", "token": "t1", "echo": "hi"},
	}, got)
}

func TestRequest_PlainBodyAndErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()
	reg := registry.New().Load(&Module{})
	fn, _ := reg.Lookup("http.request")
	ctx := context.Background()

	got, err := command.Call(ctx, fn, []any{"", srv.URL})
	require.NoError(t, err)
	resp := got.(map[string]any)
	assert.Equal(t, 404.0, resp["status_code"])
	assert.Equal(t, "nope\n", resp["body"])

	_, err = command.Call(ctx, fn, []any{"GET"})
	assert.Error(t, err)
	_, err = command.Call(ctx, fn, []any{"GET", srv.URL, nil, "bad headers"})
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotType, gotBody = r.Header.Get("Content-Type"), string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	src := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"ok":true}`), 0o644))
	reg := registry.New().Load(&Module{})
	fn, _ := reg.Lookup("http.upload")
	ctx, _ := testutil.LogContext(t)

	// --- Act ---
	got, err := command.Call(ctx, fn, []any{src, srv.URL})
	_, missingErr := command.Call(ctx, fn, []any{src + ".missing", srv.URL})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true, "status": "200 OK"}, got)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"ok":true}`, gotBody)
	assert.Error(t, missingErr)
}
