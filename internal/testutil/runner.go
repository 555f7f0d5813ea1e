package testutil

import (
	"context"
	"fmt"
	"sync"
)

type response struct {
	stdout, stderr string
	err            error
}

// FakeRunner is a scripted process runner. Command lines without a scripted
// response fail.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]response
	lines     []string
	dirs      []string
}

// Respond scripts the outcome of commandLine.
func (r *FakeRunner) Respond(commandLine, stdout, stderr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responses == nil {
		r.responses = make(map[string]response)
	}
	r.responses[commandLine] = response{stdout, stderr, err}
}

// Run records the call and returns the scripted response.
func (r *FakeRunner) Run(_ context.Context, commandLine, dir string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, commandLine)
	r.dirs = append(r.dirs, dir)
	resp, ok := r.responses[commandLine]
	if !ok {
		return "", "unexpected command: " + commandLine, fmt.Errorf("no response scripted for %q", commandLine)
	}
	return resp.stdout, resp.stderr, resp.err
}

// Lines returns every command line run so far.
func (r *FakeRunner) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Dirs returns the working directory of every run so far.
func (r *FakeRunner) Dirs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dirs...)
}
