package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/cloudrunops/internal/accounts"
	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/contents"
	"github.com/systmms/cloudrunops/internal/credentials"
	"github.com/systmms/cloudrunops/internal/deploy"
	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/metrics"
	"github.com/systmms/cloudrunops/internal/permissions"
	"github.com/systmms/cloudrunops/internal/task"
	"github.com/systmms/cloudrunops/pkg/exec"
)

// newRunner builds the process runner shared by gcloud login and
// operations. Tests replace it.
var newRunner = func(def *config.Definition, logger *logging.Logger, recorder *metrics.Recorder) exec.Runner {
	return exec.New(
		exec.WithTimeout(def.CommandTimeout),
		exec.WithLogger(logger.Named("exec")),
		exec.WithRecorder(recorder),
	)
}

// pipeline wires the credential lifecycle and the operation executor.
type pipeline struct {
	def        *config.Definition
	source     accounts.Source
	parser     credentials.AccountParser
	runner     exec.Runner
	repository *credentials.Repository
	poller     *credentials.Poller
	operations *deploy.Operations
	registry   *contents.Registry
	closers    []func() error
	logger     *logging.Logger
}

func loadConfig(cfg *config.Config) error {
	if err := cfg.Load(); err != nil {
		var cfgErr crerrors.ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		return crerrors.UserError{
			Message:    "Failed to load configuration",
			Details:    err.Error(),
			Suggestion: "Check that " + cfg.Path + " exists and is valid YAML",
			Err:        err,
		}
	}
	return nil
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	if err := loadConfig(cfg); err != nil {
		return nil, err
	}
	def := cfg.Definition
	logger := cfg.Logger
	recorder := metrics.NewRecorder()

	p := &pipeline{def: def, logger: logger, registry: contents.DefaultRegistry(logger)}
	p.closers = append(p.closers, p.registry.Close)

	source, err := accountSource(ctx, cfg)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	if closer, ok := source.(interface{ Close() error }); ok {
		p.closers = append(p.closers, closer.Close)
	}

	runner := newRunner(def, logger, recorder)
	auth := credentials.NewGcloudAuthenticator(runner, def.WorkingDirectory, logger)
	parser := credentials.NewParser(p.registry, auth, credentials.ParserConfig{
		GcloudPath:      def.GcloudPath,
		ApplicationName: def.ApplicationName,
	}, logger)
	loader := credentials.NewLoader(source, parser, logger,
		credentials.WithParallelism(def.Parallelism),
		credentials.WithLoadRecorder(recorder),
	)

	p.source, p.parser, p.runner = source, parser, runner
	p.repository = credentials.NewRepository()
	p.poller = credentials.NewPoller(loader, p.repository, logger,
		credentials.WithInterval(def.PollInterval),
		credentials.WithPollRecorder(recorder),
	)
	executor := deploy.NewExecutor(runner, deploy.Config{
		DefaultRegion:    def.DefaultRegion,
		WorkingDirectory: def.WorkingDirectory,
	}, logger, deploy.WithRecorder(recorder))
	p.operations = deploy.NewOperations(p.repository, executor)
	return p, nil
}

func accountSource(ctx context.Context, cfg *config.Config) (accounts.Source, error) {
	src := cfg.Definition.AccountSource
	switch src.Type {
	case "sql":
		source, err := accounts.OpenSQLSource(ctx, src.Driver, src.DSN, src.Table, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return source, nil
	case "file", "":
		return accounts.NewFileSource(cfg.Path, cfg.Logger), nil
	}
	return nil, crerrors.ConfigError{
		Field:      "accountSource.type",
		Value:      src.Type,
		Message:    "unknown account source",
		Suggestion: "Use 'file' or 'sql'",
	}
}

// newTask creates a task that reports to memory and, when configured, to
// Pub/Sub. The returned function releases the Pub/Sub client.
func (p *pipeline) newTask(ctx context.Context) (*task.Tracked, func(), error) {
	opts := []task.Option{task.WithLogger(p.logger), task.WithSink(task.NewMemorySink())}
	release := func() {}
	if p.def.TaskEvents.Enabled() {
		sink, err := task.NewPubSubSink(ctx, p.def.TaskEvents.Project, p.def.TaskEvents.Topic)
		if err != nil {
			return nil, nil, crerrors.BackendError("pubsub", "connect", err)
		}
		opts = append(opts, task.WithSink(sink))
		release = func() {
			if err := sink.Close(); err != nil {
				p.logger.Warn("closing task event publisher: %v", err)
			}
		}
	}
	return task.New(opts...), release, nil
}

func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// operationError turns an operation failure into a user-facing error.
func operationError(err error) error {
	var failure *deploy.OperationFailure
	if !errors.As(err, &failure) {
		return err
	}
	var process *exec.ProcessFailure
	if errors.As(err, &process) {
		return crerrors.CommandError{
			Command:    strings.Join(process.Args, " "),
			ExitCode:   process.ExitCode,
			Message:    fmt.Sprintf("%s on account %s: %s", failure.Operation, failure.Account, process.Output()),
			Suggestion: crerrors.GcloudSuggestion(process.Output() + " " + process.Error()),
		}
	}
	if errors.Is(err, credentials.ErrAccountNotFound) {
		return crerrors.UserError{
			Message:    fmt.Sprintf("Account %q is not loaded", failure.Account),
			Suggestion: "Run 'cloudrunops accounts' to see which accounts loaded and why others failed",
			Err:        err,
		}
	}
	return err
}

// authorize checks the caller's groups against the account when groups
// were given. Without --group every loaded account may be used.
func (p *pipeline) authorize(account string, groups []string, auth config.Authorization) error {
	if len(groups) == 0 {
		return nil
	}
	cred, err := p.repository.Get(account)
	if err != nil {
		// Unknown accounts are reported by the operation itself.
		return nil
	}
	result := permissions.NewChecker(p.logger).Check(cred, permissions.Request{
		Principal:     strings.Join(groups, ","),
		Groups:        groups,
		Authorization: auth,
	})
	if !result.Allowed {
		return crerrors.UserError{
			Message:    fmt.Sprintf("Not authorized for %s on account %s", auth, account),
			Details:    result.Reason,
			Suggestion: "Pass a --group that holds this permission",
		}
	}
	return nil
}
