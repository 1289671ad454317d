package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

type recordedCommand struct {
	command string
	result  string
}

type fakeRecorder struct {
	mu       sync.Mutex
	commands []recordedCommand
}

func (r *fakeRecorder) RecordCommand(command, result string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, recordedCommand{command: command, result: result})
}

func TestExecutor_Run(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	tests := []struct {
		name         string
		args         []string
		wantSuccess  bool
		wantOutput   string
		wantExitCode int
	}{
		{
			name:        "echo command",
			args:        []string{"echo", "hello"},
			wantSuccess: true,
			wantOutput:  "hello\n",
		},
		{
			name:        "command with multiple args",
			args:        []string{"echo", "hello", "world"},
			wantSuccess: true,
			wantOutput:  "hello world\n",
		},
		{
			name:        "command without args",
			args:        []string{"echo"},
			wantSuccess: true,
			wantOutput:  "\n",
		},
		{
			name:         "non-zero exit",
			args:         []string{"sh", "-c", "exit 3"},
			wantExitCode: 3,
		},
		{
			name:         "invalid command",
			args:         []string{"nonexistent_command_xyz123"},
			wantExitCode: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := New().Run(context.Background(), tt.args)

			if tt.wantSuccess {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, result.Stdout)
				assert.Empty(t, result.Stderr)
				assert.Equal(t, 0, result.ExitCode)
				assert.Equal(t, tt.args, result.Args)
				return
			}

			require.Error(t, err)
			assert.Nil(t, result)
			var failure *ProcessFailure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, tt.wantExitCode, failure.ExitCode)
			assert.Equal(t, tt.args, failure.Args)
			assert.False(t, failure.TimedOut)
			assert.NotErrorIs(t, err, ErrTimeout)
		})
	}
}

func TestExecutor_EmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = New().Run(context.Background(), []string{""})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestExecutor_StderrCapture(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	result, err := New().Run(context.Background(), []string{"sh", "-c", "echo 'stdout' && echo 'stderr' >&2"})

	require.NoError(t, err)
	assert.Equal(t, "stdout\n", result.Stdout)
	assert.Equal(t, "stderr\n", result.Stderr)
}

func TestExecutor_FailureCarriesOutput(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	_, err := New().Run(context.Background(), []string{"sh", "-c", "echo partial; echo 'permission denied' >&2; exit 1"})

	var failure *ProcessFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.ExitCode)
	assert.Equal(t, "partial\n", failure.Stdout)
	assert.Equal(t, "permission denied\n", failure.Stderr)
	assert.Equal(t, "permission denied\npartial", failure.Output())
	assert.Contains(t, err.Error(), "exited with code 1: permission denied")
}

func TestExecutor_ArgumentsAreLiteral(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	result, err := New().Run(context.Background(), []string{"echo", "$HOME", "${project}", "`id`", "a;b"})

	require.NoError(t, err)
	assert.Equal(t, "$HOME ${project} `id` a;b\n", result.Stdout)
}

func TestExecutor_Timeout(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	recorder := &fakeRecorder{}
	executor := New(WithTimeout(100*time.Millisecond), WithRecorder(recorder))

	start := time.Now()
	_, err := executor.Run(context.Background(), []string{"sleep", "10"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
	var failure *ProcessFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.TimedOut)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, []recordedCommand{{command: "sleep", result: "timeout"}}, recorder.commands)
}

func TestExecutor_TimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	// The background sleep inherits stdout. Without a group kill it would hold
	// the pipe open until the wait delay expires.
	executor := New(WithTimeout(200*time.Millisecond), WithWaitDelay(8*time.Second))

	start := time.Now()
	_, err := executor.Run(context.Background(), []string{"sh", "-c", "sleep 30 & echo started; wait"})

	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 6*time.Second)
	var failure *ProcessFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "started\n", failure.Stdout)
}

func TestExecutor_ContextCancellation(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	recorder := &fakeRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithRecorder(recorder)).Run(ctx, []string{"sleep", "10"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	require.Len(t, recorder.commands, 1)
	assert.Equal(t, "canceled", recorder.commands[0].result)
}

func TestExecutor_DirAndEnv(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o600))

	executor := New(WithDir(dir), WithEnv([]string{"CLOUDRUNOPS_TEST=visible", "PATH=" + os.Getenv("PATH")}))
	result, err := executor.Run(context.Background(), []string{"sh", "-c", "ls; echo $CLOUDRUNOPS_TEST"})

	require.NoError(t, err)
	assert.Equal(t, []string{"marker", "visible"}, strings.Fields(result.Stdout))
}

func TestExecutor_Defaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTimeout, New().Timeout())
	assert.Equal(t, DefaultTimeout, New(WithTimeout(0)).Timeout())
	assert.Equal(t, time.Minute, New(WithTimeout(time.Minute)).Timeout())
}

func TestDefaultExecutor(t *testing.T) {
	t.Parallel()

	executor := DefaultExecutor()
	require.NotNil(t, executor)

	_, ok := executor.(*Executor)
	assert.True(t, ok, "DefaultExecutor should return an *Executor")
}

func TestRunnerInterface(t *testing.T) {
	t.Parallel()

	var _ Runner = &Executor{}
	var _ Runner = (*Executor)(nil)
}
