package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/engine"
	"github.com/vk/chainrun/internal/value"
)

// ErrPipelineFailed is returned by Run when the pipeline finished with its
// error flag set. The failure report has already been written.
var ErrPipelineFailed = errors.New("pipeline failed")

// failureReport is written to the error stream when a pipeline fails.
type failureReport struct {
	Error        bool   `json:"error"`
	ErrorMessage string `json:"errorMessage"`
	Result       any    `json:"result"`
}

// Run executes the configured pipeline once. On success the finalized result
// is written to the output stream; on failure a JSON report goes to the error
// stream.
func (a *App) Run(ctx context.Context) error {
	invocation := uuid.NewString()
	ctx = ctxlog.With(a.context(ctx), "invocation", invocation)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		stop := a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		defer stop()
	}

	ins := decodeInputs(a.config.Inputs)
	logger.Info("🚀 Starting pipeline...", "inputs", len(ins))
	result, err := a.engine.Execute(ctx, a.config.Pipeline, ins, nil)
	if err != nil {
		return a.fail(ctx, result, err)
	}

	if s := value.Stringify(result); s != "" {
		fmt.Fprintln(a.outW, s)
	}
	logger.Info("🏁 Pipeline finished.")
	return nil
}

func (a *App) fail(ctx context.Context, result any, err error) error {
	ctxlog.FromContext(ctx).Error("Pipeline failed.", "error", err)

	report := failureReport{Error: true, ErrorMessage: failureMessage(err), Result: result}
	data, mErr := json.Marshal(report)
	if mErr != nil {
		return fmt.Errorf("%w: %v", ErrPipelineFailed, err)
	}
	fmt.Fprintln(a.errW, string(data))
	return fmt.Errorf("%w: %v", ErrPipelineFailed, err)
}

// failureMessage reports the leaf's own message when a leaf failed.
func failureMessage(err error) string {
	var leaf *engine.LeafError
	if errors.As(err, &leaf) && leaf.Err != nil {
		return leaf.Err.Error()
	}
	return err.Error()
}

// decodeInputs turns each positional input into a pipeline value. JSON text
// is decoded, anything else is kept as a string.
func decodeInputs(raw []string) []any {
	ins := make([]any, 0, len(raw))
	for _, s := range raw {
		if v, ok := value.ParseJSON(strings.TrimSpace(s)); ok {
			ins = append(ins, v)
			continue
		}
		ins = append(ins, s)
	}
	return ins
}
