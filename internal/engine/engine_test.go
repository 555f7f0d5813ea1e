package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chainrun/internal/chain"
	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/store"
	"github.com/vk/chainrun/internal/testutil"
	"github.com/vk/chainrun/modules/core"
)

type fixture struct {
	engine  *Engine
	runner  *testutil.FakeRunner
	sleeper *testutil.SleeperModule
	workdir string
}

func newFixture(t *testing.T, modules ...registry.Module) *fixture {
	t.Helper()
	f := &fixture{
		runner:  &testutil.FakeRunner{},
		sleeper: testutil.NewSleeperModule(),
		workdir: t.TempDir(),
	}
	reg := registry.New().Load(&core.Module{Out: &testutil.SafeBuffer{}}, f.sleeper)
	reg.Load(modules...)
	f.engine = New(reg, f.runner, WithWorkdir(f.workdir))
	return f
}

// counter registers `$.inc`, which answers x + 1 and counts its calls.
type counter struct{ calls atomic.Int32 }

func (c *counter) Register(r *registry.Registry) {
	r.RegisterContinuation("inc", func(_ context.Context, args []any, k registry.Callback) {
		c.calls.Add(1)
		n, _ := args[0].(float64)
		k(nil, n+1)
	})
}

func TestExecute_EndToEnd(t *testing.T) {
	t.Parallel()

	body := []any{
		"0 --> acc",
		map[string]any{"loop": "n>0", "series": []any{
			"(acc,n) -> {(a,n)=>a+n} -> acc",
			"(n) -> {n=>n-1} -> n",
		}},
	}

	testCases := []struct {
		name        string
		description map[string]any
	}{
		{
			name:        "result read from acc",
			description: map[string]any{"ins": "n", "out": "acc", "series": body},
		},
		{
			name: "acc copied into result",
			description: map[string]any{
				"ins": "n", "out": "result",
				"series": append(append([]any{}, body...), "acc --> result"),
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			f := newFixture(t)
			ctx, _ := testutil.LogContext(t)

			// --- Act ---
			got, err := f.engine.Execute(ctx, tc.description, []any{5}, nil)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, 15.0, got)
		})
	}
}

func TestExecute_UnassignedResult(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"ins": "n", "out": "result",
		"series": []any{
			"0 --> acc",
			map[string]any{"loop": "n>0", "series": []any{
				"(acc,n) -> {(a,n)=>a+n} -> acc",
				"(n) -> {n=>n-1} -> n",
			}},
		},
	}

	// --- Act ---
	raw, err := f.engine.Run(ctx, description, []any{5}, nil)
	require.NoError(t, err)
	final, err := f.engine.Execute(ctx, description, []any{5}, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Nil(t, raw, "a declared result that is never assigned reads as nil")
	assert.Equal(t, "", final)
}

func TestExecute_MissingInputKeepsPreset(t *testing.T) {
	t.Parallel()
	description := map[string]any{"ins": "n", "out": "n", "series": []any{}}

	testCases := []struct {
		name    string
		ins     []any
		presets map[string]any
		want    any
	}{
		{name: "preset kept", presets: map[string]any{"n": 5}, want: 5.0},
		{name: "positional value wins", ins: []any{7}, presets: map[string]any{"n": 5}, want: 7.0},
		{name: "missing without preset", want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx, _ := testutil.LogContext(t)

			got, err := f.engine.Run(ctx, description, tc.ins, tc.presets)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExecute_AssignmentFailureHalts(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	c := &counter{}
	f := newFixture(t, c)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"vars": map[string]any{"calls": 0},
		"out":  "[_error, _error_message, calls]",
		"series": []any{
			"`text --> a",
			"`value --> a.b",
			"(calls) -> [$.inc] -> calls",
		},
	}

	// --- Act ---
	got, err := f.engine.Run(ctx, description, nil, nil)

	// --- Assert ---
	var leafErr *LeafError
	require.ErrorAs(t, err, &leafErr)
	assert.Equal(t, 3, leafErr.ChainID)
	var assignErr *store.AssignmentError
	require.ErrorAs(t, err, &assignErr)
	assert.Contains(t, err.Error(), "cannot descend into string")

	parts, ok := got.([]any)
	require.True(t, ok, "result is %T", got)
	require.Len(t, parts, 3)
	assert.Equal(t, true, parts[0])
	assert.Contains(t, parts[1], "cannot descend into string")
	assert.Equal(t, 0.0, parts[2])
	assert.Zero(t, c.calls.Load(), "the next sibling never starts")
}

func TestExecute_InlineSquare(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, logs := testutil.LogContext(t)

	// --- Act ---
	got, err := f.engine.Execute(ctx, `{"ins":"num","verbose":1,"do":"{num * num}"}`, []any{10}, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
	testutil.AssertLogged(t, logs, "Pipeline normalized.", "Initial state.")
}

func TestExecute_SeriesOrdering(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"vars": map[string]any{"seq": []any{}},
		"out":  "seq",
		"series": []any{
			map[string]any{"series": []any{"(`first, 40) -> [$.sleep] -> label", "(seq, label) -> [$.push] -> seq"}},
			map[string]any{"series": []any{"(`second, 20) -> [$.sleep] -> label", "(seq, label) -> [$.push] -> seq"}},
			map[string]any{"series": []any{"(`third, 1) -> [$.sleep] -> label", "(seq, label) -> [$.push] -> seq"}},
		},
	}

	// --- Act ---
	got, err := f.engine.Run(ctx, description, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []any{"first", "second", "third"}, got)
	assert.Equal(t, []string{"first", "second", "third"}, f.sleeper.CompletionOrder())
}

func TestExecute_ParallelFanIn(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"out": "[a, b, c]",
		"parallel": []any{
			"(`one, 80) -> [$.sleep] -> a",
			"(`two, 1) -> [$.sleep] -> b",
			"(`three, 40) -> [$.sleep] -> c",
		},
	}

	// --- Act ---
	got, err := f.engine.Run(ctx, description, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three"}, got)
	order := f.sleeper.CompletionOrder()
	require.Len(t, order, 3)
	assert.Equal(t, "two", order[0], "the fastest leaf finishes first")
	assert.True(t, f.sleeper.Record("one").Start.Before(f.sleeper.Record("two").End), "leaves overlap")
}

func TestExecute_ParallelPathAssignment(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)

	// --- Act ---
	got, err := f.engine.Run(ctx, map[string]any{
		"out":      "obj",
		"parallel": []any{"`x --> obj.a", "2 --> obj.b", "`z --> obj.c.d"},
	}, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x", "b": 2.0, "c": map[string]any{"d": "z"}}, got)
}

func TestExecute_ErrorShortCircuit(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	f.runner.Respond("false", "", "boom\n", errors.New("exit status 1"))
	ctx, logs := testutil.LogContext(t)

	// --- Act ---
	got, err := f.engine.Run(ctx, map[string]any{
		"vars":   map[string]any{"y": 0},
		"out":    "y",
		"series": []any{"false", "1 --> y"},
	}, nil, nil)

	// --- Assert ---
	require.Error(t, err)
	var leafErr *LeafError
	require.ErrorAs(t, err, &leafErr)
	assert.Equal(t, 2, leafErr.ChainID)
	assert.Equal(t, "false", leafErr.Command)
	var procErr *process.Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "boom", procErr.Error())
	assert.Equal(t, 0.0, got, "the second leaf never ran")
	assert.Equal(t, []string{"false"}, f.runner.Lines())
	testutil.AssertLogged(t, logs, "Chain failed.")
}

func TestExecute_ErrorCondition(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"ins":          "x",
		"out":          "y",
		"error":        "x < 0",
		"errorMessage": "'negative input'",
		"do":           "(x) -> {x => x * 10} -> y",
	}

	// --- Act ---
	ok, okErr := f.engine.Run(ctx, description, []any{2}, nil)
	_, err := f.engine.Run(ctx, description, []any{-2}, nil)

	// --- Assert ---
	require.NoError(t, okErr)
	assert.Equal(t, 20.0, ok)
	var leafErr *LeafError
	require.ErrorAs(t, err, &leafErr)
	assert.Equal(t, "negative input", leafErr.Err.Error())
}

func TestExecute_FlagSetByPipeline(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)

	// --- Act ---
	_, err := f.engine.Run(ctx, []any{"`stop here --> _error_message", "true --> _error", "1 --> never"}, nil, nil)

	// --- Assert ---
	require.ErrorIs(t, err, ErrFlagged)
	assert.Contains(t, err.Error(), "stop here")
}

func TestExecute_LateSiblingIsDiscarded(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)

	// --- Act ---
	start := time.Now()
	_, err := f.engine.Run(ctx, map[string]any{
		"parallel": []any{"(`late, 200) -> [$.sleep] -> late", "(`boom) -> [$.raise]"},
	}, nil, nil)

	// --- Assert ---
	require.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "the failure completes the run without waiting")
	require.Eventually(t, func() bool { return f.sleeper.Record("late") != nil }, time.Second, 5*time.Millisecond)
}

func TestExecute_Loop(t *testing.T) {
	t.Parallel()

	t.Run("lambda", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx, _ := testutil.LogContext(t)

		got, err := f.engine.Execute(ctx, map[string]any{
			"vars":    map[string]any{"i": 0},
			"loop":    "i<3",
			"command": "(i)->{x=>x+1}->i",
		}, nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 3.0, got)
	})

	t.Run("executions are counted", func(t *testing.T) {
		t.Parallel()
		c := &counter{}
		f := newFixture(t, c)
		ctx, _ := testutil.LogContext(t)

		got, err := f.engine.Execute(ctx, map[string]any{
			"vars":    map[string]any{"i": 0},
			"loop":    "i<3",
			"command": "(i) -> [$.inc] -> i",
		}, nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 3.0, got)
		assert.Equal(t, int32(3), c.calls.Load())
	})

	t.Run("loop without branch entry runs nothing", func(t *testing.T) {
		t.Parallel()
		c := &counter{}
		f := newFixture(t, c)
		ctx, _ := testutil.LogContext(t)

		got, err := f.engine.Execute(ctx, map[string]any{
			"vars": map[string]any{"i": 0},
			"if":   "i>0",
			"loop": "i<3",
			"do":   "(i) -> [$.inc] -> i",
		}, nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
		assert.Zero(t, c.calls.Load())
	})
}

func TestExecute_BranchNegation(t *testing.T) {
	t.Parallel()
	description := map[string]any{
		"vars": map[string]any{"x": -1},
		"if":   "x>0",
		"do":   "`positive --> sign",
		"else": "`negative --> sign",
		"out":  "sign",
	}

	testCases := []struct {
		name    string
		presets map[string]any
		want    any
	}{
		{name: "else runs", want: "negative"},
		{name: "caller presets win over vars", presets: map[string]any{"x": 1}, want: "positive"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx, _ := testutil.LogContext(t)

			got, err := f.engine.Execute(ctx, description, nil, tc.presets)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExecute_MapAndFilter(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"vars": map[string]any{"items": []any{1, 2, 3}, "factor": 10},
		"out":  "[scaled, odd, same]",
		"series": []any{
			map[string]any{"map": "items", "into": "scaled", "ins": "x", "do": []any{"(x, factor) -> {(x, f) => x * f}"}},
			map[string]any{"filter": "items", "into": "odd", "do": "(_item) -> {x => x % 2 == 1}"},
			map[string]any{"map": "items", "into": "same"},
		},
	}

	// --- Act ---
	got, err := f.engine.Run(ctx, description, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []any{
		[]any{10.0, 20.0, 30.0},
		[]any{1.0, 3.0},
		[]any{1.0, 2.0, 3.0},
	}, got)
}

func TestExecute_RunChain(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	description := map[string]any{
		"vars": map[string]any{"square": map[string]any{"ins": "n", "do": "(n) -> {n => n * n}"}},
		"do":   "(square, 4) -> [$.runChain] -> r",
	}

	// --- Act ---
	got, err := f.engine.Execute(ctx, description, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 16.0, got)
}

func TestExecute_ShellAndFile(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	f.runner.Respond("echo world", "world\n", "", nil)
	dir := filepath.Join(f.workdir, "pipelines")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yaml := "ins: name\nout: '[greeting, _description, _chain_cwd]'\nseries:\n  - |(name) -> echo -> greeting\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.yaml"), []byte(yaml), 0o644))
	ctx, _ := testutil.LogContext(t)

	// --- Act ---
	got, err := f.engine.Run(ctx, "pipelines/hello.yaml", []any{"world"}, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []any{"world", "FILE: hello.yaml", dir + "/"}, got)
	assert.Equal(t, []string{dir}, f.runner.Dirs())
}

func TestExecute_Memoization(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)
	text := "(a, b) -> {(a, b) => a + b}"

	// --- Act ---
	first, err := f.engine.Normalize(ctx, text)
	require.NoError(t, err)
	second, err := f.engine.Normalize(ctx, text)
	require.NoError(t, err)
	got, err := f.engine.Execute(ctx, map[string]any{"ins": "a, b", "do": text}, []any{2, 3}, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 5.0, got)
}

func TestExecute_Malformed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, _ := testutil.LogContext(t)

	for _, description := range []any{"{", "a --> b --> c", map[string]any{"do": "[$.missing]"}} {
		_, err := f.engine.Execute(ctx, description, nil, nil)
		var nerr *chain.NormalizationError
		assert.ErrorAs(t, err, &nerr, "%v", description)
	}
}

func TestExecute_Canceled(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	logCtx, _ := testutil.LogContext(t)
	ctx, cancel := context.WithTimeout(logCtx, 20*time.Millisecond)
	defer cancel()

	// --- Act ---
	_, err := f.engine.Execute(ctx, "(`slow, 500) -> [$.sleep]", nil, nil)

	// --- Assert ---
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_VerboseTrace(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t)
	ctx, logs := testutil.LogContext(t)

	// --- Act ---
	_, err := f.engine.Execute(ctx, map[string]any{"verbose": 3, "if": "false", "series": []any{"1 --> a"}}, nil, nil)
	require.NoError(t, err)
	_, err = f.engine.Execute(ctx, map[string]any{"verbose": 3, "do": "1 --> a"}, nil, nil)

	// --- Assert ---
	require.NoError(t, err)
	testutil.AssertLogged(t, logs, "state=skipped", "state=done", "Variable assigned.", "Invoking command.")
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   any
		want any
	}{
		{nil, ""},
		{"text\n\n", "text"},
		{[]any{1.0, "a"}, `[1,"a"]`},
		{map[string]any{"k": true}, `{"k":true}`},
		{3.5, 3.5},
		{false, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Finalize(tc.in))
	}
}
