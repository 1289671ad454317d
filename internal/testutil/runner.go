package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/systmms/cloudrunops/pkg/exec"
)

// FakeRunner is a scripted exec.Runner for code that shells out to gcloud.
//
// Responses are keyed by the space-joined command line. A key matches when
// it equals the command line or is a prefix of it. Unmatched commands
// succeed with empty output unless StrictMode is set.
type FakeRunner struct {
	mu sync.Mutex

	Responses map[string]Response

	// OnRun is called with each command before its response is returned,
	// while staged files still exist.
	OnRun func(args []string)

	// StrictMode causes Run to fail if no matching response is found.
	StrictMode bool

	calls [][]string
}

// Response defines the outcome of a scripted command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// NewFakeRunner creates a runner with no scripted responses.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Responses: make(map[string]Response)}
}

// Run implements exec.Runner.
func (r *FakeRunner) Run(ctx context.Context, args []string) (*exec.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), args...))
	resp, found := r.lookup(strings.Join(args, " "))
	onRun := r.OnRun
	strict := r.StrictMode
	r.mu.Unlock()

	if onRun != nil {
		onRun(args)
	}
	if !found && strict {
		return nil, fmt.Errorf("fake runner: no response configured for command: %s", strings.Join(args, " "))
	}

	if resp.Err != nil || resp.ExitCode != 0 {
		err := resp.Err
		if err == nil {
			err = fmt.Errorf("exit status %d", resp.ExitCode)
		}
		return nil, &exec.ProcessFailure{
			Args:     args,
			ExitCode: resp.ExitCode,
			Stdout:   resp.Stdout,
			Stderr:   resp.Stderr,
			Duration: resp.Duration,
			Err:      err,
		}
	}
	return &exec.Result{Args: args, Stdout: resp.Stdout, Stderr: resp.Stderr, Duration: resp.Duration}, nil
}

// lookup prefers an exact match, then the longest matching prefix.
func (r *FakeRunner) lookup(key string) (Response, bool) {
	if resp, ok := r.Responses[key]; ok {
		return resp, true
	}
	best, found := "", false
	for pattern := range r.Responses {
		if strings.HasPrefix(key, pattern) && (!found || len(pattern) > len(best)) {
			best, found = pattern, true
		}
	}
	return r.Responses[best], found
}

// AddResponse registers a response for a command-line prefix.
func (r *FakeRunner) AddResponse(pattern string, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses[pattern] = resp
}

// AddFailure registers a non-zero exit with stderr for a prefix.
func (r *FakeRunner) AddFailure(pattern, stderr string, exitCode int) {
	r.AddResponse(pattern, Response{Stderr: stderr, ExitCode: exitCode})
}

// Calls returns every command run so far.
func (r *FakeRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

// CallsWithPrefix returns the commands whose command line starts with prefix.
func (r *FakeRunner) CallsWithPrefix(prefix string) [][]string {
	var matches [][]string
	for _, call := range r.Calls() {
		if strings.HasPrefix(strings.Join(call, " "), prefix) {
			matches = append(matches, call)
		}
	}
	return matches
}

// CallCount returns the number of times Run was called.
func (r *FakeRunner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
