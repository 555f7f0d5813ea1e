package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/chainrun/internal/registry"
)

// ExecutionRecord holds the start and end time of one sleeper call.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// SleeperModule registers `$.sleep`, a continuation function called as
// `[$.sleep]` with inputs (label, milliseconds). It waits, records the call
// and reports label as its result.
type SleeperModule struct {
	mu         sync.Mutex
	Executions map[string]*ExecutionRecord
	Completed  []string
}

// NewSleeperModule creates a new sleeper module for testing.
func NewSleeperModule() *SleeperModule {
	return &SleeperModule{Executions: make(map[string]*ExecutionRecord)}
}

// Register registers the sleeper function.
func (m *SleeperModule) Register(r *registry.Registry) {
	r.RegisterContinuation("sleep", func(_ context.Context, args []any, k registry.Callback) {
		label, _ := args[0].(string)
		var ms float64
		if len(args) > 1 {
			ms, _ = args[1].(float64)
		}
		go func() {
			start := time.Now()
			time.Sleep(time.Duration(ms) * time.Millisecond)
			m.mu.Lock()
			m.Executions[label] = &ExecutionRecord{Start: start, End: time.Now()}
			m.Completed = append(m.Completed, label)
			m.mu.Unlock()
			k(nil, label)
		}()
	})
}

// CompletionOrder returns labels in the order their calls finished.
func (m *SleeperModule) CompletionOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Completed...)
}

// Record returns the execution record for label.
func (m *SleeperModule) Record(label string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Executions[label]
}
