package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/testutil"
)

func call(t *testing.T, reg *registry.Registry, name string, args ...any) (any, error) {
	t.Helper()
	fn, ok := reg.Lookup(name)
	require.True(t, ok, "function %s is registered", name)
	return command.Call(context.Background(), fn, args)
}

func TestDirectFunctions(t *testing.T) {
	t.Parallel()
	reg := registry.New().Load(&Module{})

	testCases := []struct {
		name string
		fn   string
		args []any
		want any
	}{
		{"pack single", "pack", []any{"a"}, "a"},
		{"pack many", "pack", []any{"a", 1.0}, []any{"a", 1.0}},
		{"concat", "concat", []any{"a", 1.0, []any{true}}, "a1[true]"},
		{"join with delimiter", "join", []any{[]any{"a", "b", 3.0}, "-"}, "a-b-3"},
		{"join without delimiter", "join", []any{[]any{"a", "b"}}, "ab"},
		{"split", "split", []any{"a,b,c", ","}, []any{"a", "b", "c"}},
		{"split characters", "split", []any{"ab"}, []any{"a", "b"}},
		{"push", "push", []any{[]any{1.0}, 2.0}, []any{1.0, 2.0}},
		{"push onto nil", "push", []any{nil, "x"}, []any{"x"}},
		{
			"merge nested", "merge",
			[]any{map[string]any{"a": 1.0, "n": map[string]any{"x": 1.0}}, map[string]any{"n": map[string]any{"y": 2.0}}},
			map[string]any{"a": 1.0, "n": map[string]any{"x": 1.0, "y": 2.0}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := call(t, reg, tc.fn, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDirectFunctions_Errors(t *testing.T) {
	t.Parallel()
	reg := registry.New().Load(&Module{})

	_, err := call(t, reg, "join", "not a list")
	assert.Error(t, err)
	_, err = call(t, reg, "push", "not a list", 1.0)
	assert.Error(t, err)
	_, err = call(t, reg, "merge", map[string]any{}, []any{})
	assert.Error(t, err)
}

func TestPushDoesNotAlias(t *testing.T) {
	t.Parallel()
	reg := registry.New().Load(&Module{})
	list := make([]any, 1, 4)
	list[0] = "a"

	first, err := call(t, reg, "push", list, "b")
	require.NoError(t, err)
	second, err := call(t, reg, "push", list, "c")
	require.NoError(t, err)

	assert.Equal(t, []any{"a", "b"}, first)
	assert.Equal(t, []any{"a", "c"}, second)
}

func TestPrintAndPrompt(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	out := &testutil.SafeBuffer{}
	prompt := &testutil.SafeBuffer{}
	m := &Module{Out: out, Prompt: prompt, In: strings.NewReader("Alice\nBob")}
	reg := registry.New().Load(m)

	// --- Act ---
	printed, err := call(t, reg, "print", map[string]any{"k": "v"})
	require.NoError(t, err)
	first, err := call(t, reg, "prompt", "Name?")
	require.NoError(t, err)
	second, err := call(t, reg, "prompt", "Again?")
	require.NoError(t, err)
	_, eofErr := call(t, reg, "prompt", "More?")

	// --- Assert ---
	assert.Equal(t, map[string]any{"k": "v"}, printed)
	assert.Equal(t, "{\"k\":\"v\"}\n", out.String())
	assert.Equal(t, "Alice", first)
	assert.Equal(t, "Bob", second)
	assert.Error(t, eofErr)
	assert.Equal(t, "Name? Again? More? ", prompt.String())
}
