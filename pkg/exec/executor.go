// Package exec runs external command-line tools with a bounded execution time.
// Arguments are passed to the process as literal tokens; no shell is involved.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single run when no timeout is configured.
	DefaultTimeout = 10 * time.Minute

	// DefaultWaitDelay bounds how long output pipes are drained after the
	// process has been killed.
	DefaultWaitDelay = 5 * time.Second
)

var (
	// ErrEmptyCommand is returned when Run is called without an executable.
	ErrEmptyCommand = errors.New("empty command")

	// ErrTimeout is matched by failures of processes killed on timeout.
	ErrTimeout = errors.New("command timed out")
)

// Runner runs one external command to completion.
type Runner interface {
	// Run executes args[0] with args[1:] as its arguments and blocks until
	// the process exits or its time bound expires.
	Run(ctx context.Context, args []string) (*Result, error)
}

// Result describes a finished process.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ProcessFailure is returned when a process cannot be launched, exits
// non-zero, or is killed on timeout.
type ProcessFailure struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Err      error
}

func (f *ProcessFailure) Error() string {
	command := strings.Join(f.Args, " ")
	if f.TimedOut {
		return fmt.Sprintf("command %q timed out after %s", command, f.Duration.Round(time.Millisecond))
	}
	if f.ExitCode < 0 {
		return fmt.Sprintf("command %q failed: %v", command, f.Err)
	}
	msg := fmt.Sprintf("command %q exited with code %d", command, f.ExitCode)
	if stderr := strings.TrimSpace(f.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Unwrap exposes ErrTimeout for timed out processes alongside the cause.
func (f *ProcessFailure) Unwrap() []error {
	if f.TimedOut {
		return []error{ErrTimeout, f.Err}
	}
	return []error{f.Err}
}

// Output returns the captured output, stderr first, for diagnostics.
func (f *ProcessFailure) Output() string {
	return strings.TrimSpace(strings.TrimSpace(f.Stderr) + "\n" + strings.TrimSpace(f.Stdout))
}

// Logger receives debug traces of each run.
type Logger interface {
	Debug(format string, args ...interface{})
}

// Recorder receives the duration of each run.
type Recorder interface {
	RecordCommand(command, result string, durationSeconds float64)
}

// Executor is the production Runner backed by os/exec.
type Executor struct {
	timeout   time.Duration
	waitDelay time.Duration
	dir       string
	env       []string
	logger    Logger
	recorder  Recorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the maximum run time of each process.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithWaitDelay sets how long output is drained after a kill.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.waitDelay = d
		}
	}
}

// WithDir sets the working directory of each process.
func WithDir(dir string) Option {
	return func(e *Executor) {
		e.dir = dir
	}
}

// WithEnv sets the environment of each process. Nil inherits the current one.
func WithEnv(env []string) Option {
	return func(e *Executor) {
		e.env = env
	}
}

// WithLogger sets the debug logger.
func WithLogger(logger Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRecorder sets the duration recorder.
func WithRecorder(recorder Recorder) Option {
	return func(e *Executor) {
		e.recorder = recorder
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		timeout:   DefaultTimeout,
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultExecutor returns the standard production executor.
func DefaultExecutor() Runner {
	return New()
}

// Timeout returns the configured time bound.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run implements Runner.
func (e *Executor) Run(ctx context.Context, args []string) (*Result, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, ErrEmptyCommand
	}
	args = append([]string(nil), args...)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = e.dir
	cmd.Env = e.env
	cmd.WaitDelay = e.waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	killProcessGroup(cmd)

	e.debug("running %s", strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Args:     args,
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	if err == nil {
		e.record(args[0], "success", duration)
		e.debug("%s finished in %s", filepath.Base(args[0]), duration)
		return result, nil
	}

	failure := &ProcessFailure{
		Args:     args,
		ExitCode: -1,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		Duration: duration,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
	}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		failure.TimedOut = true
		e.record(args[0], "timeout", duration)
	case ctx.Err() != nil:
		failure.Err = errors.Join(err, ctx.Err())
		e.record(args[0], "canceled", duration)
	default:
		e.record(args[0], "error", duration)
	}
	e.debug("%s failed: %v", filepath.Base(args[0]), failure)
	return nil, failure
}

func (e *Executor) debug(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(format, args...)
	}
}

func (e *Executor) record(command, result string, duration time.Duration) {
	if e.recorder != nil {
		e.recorder.RecordCommand(filepath.Base(command), result, duration.Seconds())
	}
}
