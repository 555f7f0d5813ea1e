// Package httpreq provides outbound HTTP as deferred `$` functions:
// `$.http.request` and `$.http.upload`. Both share one client so that
// connections are reused across leaves.
package httpreq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client defaults to NewClient(30 * time.Second).
	Client *http.Client
}

// NewClient returns a client with a pooled transport.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Register registers the handlers with the registry.
func (m *Module) Register(r *registry.Registry) {
	if m.Client == nil {
		m.Client = NewClient(30 * time.Second)
	}
	r.RegisterDeferred("http.request", func(ctx context.Context, args []any) *registry.Future {
		return registry.Go(func() (any, error) { return m.request(ctx, args) })
	})
	r.RegisterDeferred("http.upload", func(ctx context.Context, args []any) *registry.Future {
		return registry.Go(func() (any, error) { return m.upload(ctx, args) })
	})
}

// request(method, url, body, headers) answers with the status code, the
// status text, and the body. A JSON body is decoded. Non-2xx statuses are
// not errors.
func (m *Module) request(ctx context.Context, args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("http.request expects a method and a url")
	}
	method := strings.ToUpper(value.Stringify(args[0]))
	if method == "" {
		method = http.MethodGet
	}
	url := value.Stringify(args[1])
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", url)

	var body io.Reader
	if len(args) > 2 && args[2] != nil {
		body = strings.NewReader(value.Stringify(args[2]))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(args) > 3 {
		headers, ok := args[3].(map[string]any)
		if !ok && args[3] != nil {
			return nil, fmt.Errorf("http.request headers must be a map, got %T", args[3])
		}
		for k, v := range headers {
			req.Header.Set(k, value.Stringify(v))
		}
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	logger.Info("Received HTTP response", "status", resp.Status)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var decoded any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		if v, ok := value.ParseJSON(string(bytes.TrimSpace(raw))); ok {
			decoded = v
		}
	}
	return map[string]any{
		"status_code": float64(resp.StatusCode),
		"status":      resp.Status,
		"body":        decoded,
	}, nil
}

// upload(sourcePath, uploadURL) PUTs a file to a pre-signed URL.
func (m *Module) upload(ctx context.Context, args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("http.upload expects a source path and an upload url")
	}
	sourcePath := value.Stringify(args[0])
	uploadURL := value.Stringify(args[1])
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file '%s': %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for '%s': %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file", "source", sourcePath, "size", stat.Size(), "contentType", contentType)
	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed with status: %s", resp.Status)
	}
	logger.Info("Successfully uploaded file", "status", resp.Status)
	return map[string]any{"success": true, "status": resp.Status}, nil
}
