// Package socketio provides `$.socketio.request`, a deferred function that
// performs one socket.io round trip per leaf: connect, emit an event, wait
// for the answering event, disconnect.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const defaultTimeout = 10 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct {
	// Timeout applies when a call gives none. Defaults to 10s.
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// request is one decoded call.
type request struct {
	URL       string
	Namespace string
	EmitEvent string
	EmitData  any
	OnEvent   string
	Timeout   time.Duration
}

type opResult struct {
	value any
	err   error
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDeferred("socketio.request", func(ctx context.Context, args []any) *registry.Future {
		return registry.Go(func() (any, error) {
			req, err := m.parse(args)
			if err != nil {
				return nil, err
			}
			return m.roundTrip(ctx, req)
		})
	})
}

// parse decodes (url, emitEvent, data, onEvent, timeout). The url path
// selects the namespace; onEvent defaults to emitEvent; timeout is a
// duration string or a number of milliseconds.
func (m *Module) parse(args []any) (request, error) {
	arg := func(i int) any {
		if i < len(args) {
			return args[i]
		}
		return nil
	}
	req := request{
		URL:       strings.TrimSpace(value.Stringify(arg(0))),
		EmitEvent: strings.TrimSpace(value.Stringify(arg(1))),
		EmitData:  value.Normalize(arg(2)),
		OnEvent:   strings.TrimSpace(value.Stringify(arg(3))),
		Timeout:   m.Timeout,
	}
	if req.URL == "" || req.EmitEvent == "" {
		return request{}, fmt.Errorf("socketio.request expects a url and an event name")
	}
	if req.OnEvent == "" {
		req.OnEvent = req.EmitEvent
	}
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return request{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return request{}, fmt.Errorf("socketio.request needs an absolute url, got %q", req.URL)
	}
	req.Namespace = parsed.Path
	if req.Namespace == "" {
		req.Namespace = "/"
	}

	switch t := value.Normalize(arg(4)).(type) {
	case nil:
	case float64:
		req.Timeout = time.Duration(t) * time.Millisecond
	case string:
		if req.Timeout, err = time.ParseDuration(t); err != nil {
			return request{}, fmt.Errorf("failed to parse timeout: %w", err)
		}
	default:
		return request{}, fmt.Errorf("timeout must be a duration or milliseconds, got %T", t)
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout
	}
	return req, nil
}

// roundTrip connects, emits and waits for the answer. The connection is
// always closed before returning.
func (m *Module) roundTrip(ctx context.Context, req request) (any, error) {
	logger := ctxlog.FromContext(ctx).With("function", "socketio.request", "url", req.URL, "emitEvent", req.EmitEvent, "onEvent", req.OnEvent)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	parsed, _ := url.Parse(req.URL)
	opts := socket.DefaultOptions()
	if m.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	opCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	done := make(chan opResult, 1)
	settle := func(r opResult) {
		select {
		case done <- r:
		default:
		}
	}
	var connected atomic.Bool

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket(req.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.Once(types.EventName(req.OnEvent), func(data ...any) {
		var answer any
		if len(data) > 0 {
			answer = value.Normalize(data[0])
		}
		settle(opResult{value: answer})
	})
	io.Once(types.EventName("connect"), func(...any) {
		connected.Store(true)
		logger.Info("Connected, emitting event.", "sid", io.Id())
		io.Emit(req.EmitEvent, req.EmitData)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("socket.io connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("socket.io connection failed: %w", e)
			}
		}
		settle(opResult{err: err})
	})

	io.Connect()

	select {
	case res := <-done:
		return res.value, res.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if connected.Load() {
			return nil, fmt.Errorf("timed out after %v waiting for event '%s'", req.Timeout, req.OnEvent)
		}
		return nil, fmt.Errorf("timed out after %v waiting for the connection", req.Timeout)
	}
}
