// Package deploy applies and deletes Cloud Run services with gcloud on
// behalf of a named account.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/credentials"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/metrics"
	"github.com/systmms/cloudrunops/internal/task"
	"github.com/systmms/cloudrunops/pkg/exec"
)

// serviceNamePattern is the Cloud Run service name format. Names are placed
// in gcloud's argv, so anything else could be read as a flag.
var serviceNamePattern = regexp.MustCompile(`^[a-z]([-a-z0-9]{0,61}[a-z0-9])?$`)

// DeployDescription is a request to replace services from config files.
type DeployDescription struct {
	// ConfigFiles are YAML service definitions, one staged file each.
	ConfigFiles []string
	// ApplicationDirectoryRoot is a relative directory under the account's
	// repository directory to stage into.
	ApplicationDirectoryRoot string
	// Region overrides the account region.
	Region string
}

// DestroyDescription is a request to delete one service.
type DestroyDescription struct {
	ServiceName string
	Region      string
}

// Config holds the process-wide operation settings.
type Config struct {
	DefaultRegion    string
	WorkingDirectory string
}

// OperationRecorder receives operation metrics. *metrics.Recorder
// implements it.
type OperationRecorder interface {
	RecordOperation(operation, account string, success bool, durationSeconds float64)
}

// Executor runs deploy and destroy operations.
type Executor struct {
	runner   exec.Runner
	cfg      Config
	logger   *logging.Logger
	recorder OperationRecorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder sets the metrics sink.
func WithRecorder(r OperationRecorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// NewExecutor creates an executor running gcloud through runner.
func NewExecutor(runner exec.Runner, cfg Config, logger *logging.Logger, opts ...Option) *Executor {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = config.DefaultRegion
	}
	e := &Executor{
		runner:   runner,
		cfg:      cfg,
		logger:   logger.Named("deploy"),
		recorder: metrics.NewRecorder(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deploy stages every config file, runs "gcloud run services replace" once
// with all of them and removes the staged files again.
func (e *Executor) Deploy(ctx context.Context, t task.Task, cred *credentials.NamedCredential, desc DeployDescription) (outcome *Outcome, err error) {
	start := time.Now()
	op := &operation{executor: e, task: t, name: OperationDeploy, phase: task.PhaseDeploy}
	defer func() { op.finish(outcome, err, start) }()

	if cred == nil {
		return nil, op.fail(KindInvalid, nil, errors.New("no credential"))
	}
	op.account = cred.Name
	op.done = fmt.Sprintf("Done deploying to account %s.", cred.Name)
	if desc.ApplicationDirectoryRoot != "" && !filepath.IsLocal(desc.ApplicationDirectoryRoot) {
		return nil, op.fail(KindInvalid, nil, fmt.Errorf("application directory %q must be a relative path inside the repository", desc.ApplicationDirectoryRoot))
	}
	t.UpdateStatus(task.PhaseDeploy, fmt.Sprintf("Starting deploy to account %s...", cred.Name))

	if err := ctx.Err(); err != nil {
		return nil, op.fail(KindCanceled, nil, err)
	}
	dir, err := e.stagingDir(cred, desc.ApplicationDirectoryRoot)
	if err != nil {
		return nil, op.fail(KindStaging, nil, err)
	}
	var artifacts []string
	defer func() { e.cleanup(dir, artifacts) }()

	artifacts, err = e.stage(dir, desc.ConfigFiles)
	if err != nil {
		return nil, op.fail(KindStaging, nil, err)
	}
	t.UpdateStatus(task.PhaseDeploy, fmt.Sprintf("Staged %d config file(s)", len(artifacts)))

	args := e.deployCommand(cred, artifacts, desc.Region)
	if err := ctx.Err(); err != nil {
		return nil, op.fail(KindCanceled, args, err)
	}
	return op.run(ctx, args, artifacts)
}

// Destroy runs "gcloud run services delete" for one service.
func (e *Executor) Destroy(ctx context.Context, t task.Task, cred *credentials.NamedCredential, desc DestroyDescription) (outcome *Outcome, err error) {
	start := time.Now()
	op := &operation{executor: e, task: t, name: OperationDestroy, phase: task.PhaseDestroy}
	defer func() { op.finish(outcome, err, start) }()

	if cred == nil {
		return nil, op.fail(KindInvalid, nil, errors.New("no credential"))
	}
	op.account = cred.Name
	op.done = fmt.Sprintf("Done destroying service %s.", desc.ServiceName)
	if strings.TrimSpace(desc.ServiceName) == "" {
		return nil, op.fail(KindInvalid, nil, errors.New("service name is required"))
	}
	if !serviceNamePattern.MatchString(desc.ServiceName) {
		return nil, op.fail(KindInvalid, nil, fmt.Errorf("invalid service name %q: use lowercase letters, digits and hyphens, starting with a letter", desc.ServiceName))
	}
	t.UpdateStatus(task.PhaseDestroy, fmt.Sprintf("Destroying service %s in account %s...", desc.ServiceName, cred.Name))

	args := e.destroyCommand(cred, desc)
	if err := ctx.Err(); err != nil {
		return nil, op.fail(KindCanceled, args, err)
	}
	return op.run(ctx, args, nil)
}

// Region picks the region of an operation: the request, then the account,
// then the configured default.
func (e *Executor) Region(cred *credentials.NamedCredential, override string) string {
	switch {
	case override != "":
		return override
	case cred.Region != "":
		return cred.Region
	default:
		return e.cfg.DefaultRegion
	}
}

func (e *Executor) deployCommand(cred *credentials.NamedCredential, artifacts []string, region string) []string {
	args := e.gcloud(cred, "run", "services", "replace")
	args = append(args, artifacts...)
	return append(args, e.targetFlags(cred, region)...)
}

func (e *Executor) destroyCommand(cred *credentials.NamedCredential, desc DestroyDescription) []string {
	args := e.gcloud(cred, "run", "services", "delete", desc.ServiceName)
	args = append(args, e.targetFlags(cred, desc.Region)...)
	return append(args, "--quiet")
}

// gcloud starts a command line, inserting the account's release track.
func (e *Executor) gcloud(cred *credentials.NamedCredential, subcommand ...string) []string {
	gcloudPath := cred.GcloudPath
	if gcloudPath == "" {
		gcloudPath = config.DefaultGcloudPath
	}
	args := []string{gcloudPath}
	if track := strings.ToLower(cred.GcloudReleaseTrack); track != "" && track != "ga" {
		args = append(args, track)
	}
	return append(args, subcommand...)
}

func (e *Executor) targetFlags(cred *credentials.NamedCredential, region string) []string {
	flags := []string{"--region=" + e.Region(cred, region)}
	if cred.Project != "" {
		flags = append(flags, "--project="+cred.Project)
	}
	return flags
}

// stagingDir creates the private directory of one deploy call.
func (e *Executor) stagingDir(cred *credentials.NamedCredential, appRoot string) (string, error) {
	base := cred.LocalRepositoryDirectory
	if base == "" {
		base = e.cfg.WorkingDirectory
	}
	if base == "" {
		base = os.TempDir()
	}
	root := filepath.Join(base, appRoot)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("could not create working directory: %w", err)
	}
	dir, err := os.MkdirTemp(root, "deploy-*")
	if err != nil {
		return "", fmt.Errorf("could not create working directory: %w", err)
	}
	return dir, nil
}

// stage writes each payload to its own <uuid>.yaml file. On error the
// paths written so far are still returned for cleanup.
func (e *Executor) stage(dir string, payloads []string) ([]string, error) {
	paths := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		path := filepath.Join(dir, uuid.NewString()+".yaml")
		if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
			return paths, fmt.Errorf("could not write config file: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Executor) cleanup(dir string, artifacts []string) {
	for _, path := range artifacts {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("could not delete config file %s: %v", path, err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("could not delete working directory %s: %v", dir, err)
	}
}

// operation carries the bookkeeping shared by deploy and destroy.
type operation struct {
	executor *Executor
	task     task.Task
	name     string
	phase    string
	account  string
	done     string
}

func (op *operation) fail(kind FailureKind, args []string, err error) *OperationFailure {
	failure := &OperationFailure{Operation: op.name, Account: op.account, Command: args, Kind: kind, Err: err}
	op.task.Fail(op.phase, fmt.Sprintf("Failed to %s: %v", op.name, err))
	return failure
}

// run invokes gcloud. The caller's cancellation does not reach a running
// process; the executor timeout does.
func (op *operation) run(ctx context.Context, args, artifacts []string) (*Outcome, error) {
	outcome := &Outcome{
		Operation: op.name,
		Account:   op.account,
		Command:   args,
		Artifacts: artifacts,
		Status:    StatusFailed,
	}
	op.task.UpdateStatus(op.phase, fmt.Sprintf("Running %s", strings.Join(args, " ")))

	result, err := op.executor.runner.Run(context.WithoutCancel(ctx), args)
	outcome.Result = result
	if err != nil {
		var failure *exec.ProcessFailure
		if outcome.Result == nil && errors.As(err, &failure) {
			outcome.Result = &exec.Result{
				Args:     failure.Args,
				ExitCode: failure.ExitCode,
				Stdout:   failure.Stdout,
				Stderr:   failure.Stderr,
				Duration: failure.Duration,
			}
		}
		return outcome, op.fail(KindProcess, args, err)
	}
	outcome.Status = StatusSucceeded
	op.task.Complete(op.phase, op.done)
	return outcome, nil
}

func (op *operation) finish(outcome *Outcome, err error, start time.Time) {
	elapsed := time.Since(start).Seconds()
	op.executor.recorder.RecordOperation(op.name, op.account, err == nil, elapsed)
	if err != nil {
		op.executor.logger.Error("%v", err)
		return
	}
	op.executor.logger.Info("%s on account %s finished in %.1fs", op.name, op.account, elapsed)
}
