package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systmms/cloudrunops/internal/accounts"
	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/metrics"
)

// LoadRecorder receives loader metrics. *metrics.Recorder implements it.
type LoadRecorder interface {
	RecordParseFailure(account, stage string)
	RecordSnapshot(accounts int, generation uint64)
}

// Result is the outcome of parsing one account: exactly one of Credential
// and Err is set.
type Result struct {
	Credential *NamedCredential
	Err        error
}

// Loader turns the current account definitions into a Snapshot.
type Loader struct {
	source      accounts.Source
	parser      AccountParser
	parallelism int
	logger      *logging.Logger
	recorder    LoadRecorder
	now         func() time.Time
	generation  atomic.Uint64
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithParallelism bounds how many accounts are parsed at once.
func WithParallelism(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.parallelism = n
		}
	}
}

// WithLoadRecorder sets the metrics sink.
func WithLoadRecorder(r LoadRecorder) LoaderOption {
	return func(l *Loader) {
		l.recorder = r
	}
}

// WithNow overrides the snapshot timestamp source.
func WithNow(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader creates a loader reading from source.
func NewLoader(source accounts.Source, parser AccountParser, logger *logging.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:      source,
		parser:      parser,
		parallelism: config.DefaultParallelism,
		logger:      logger.Named("loader"),
		recorder:    metrics.NewRecorder(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load runs one cycle. Accounts that fail are logged and left out; only a
// failure to list accounts (or cancellation) fails the whole cycle.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	defs, err := l.source.CurrentAccounts(ctx)
	if err != nil {
		return nil, &LoadCycleFailure{Err: err}
	}

	results := make([]Result, len(defs))
	g := new(errgroup.Group)
	g.SetLimit(l.parallelism)
	for i := range defs {
		g.Go(func() error {
			results[i] = l.parseOne(ctx, defs[i])
			return nil
		})
	}
	_ = g.Wait()

	// A cancelled cycle would drop every account still in flight.
	if err := ctx.Err(); err != nil {
		return nil, &LoadCycleFailure{Err: err}
	}

	loaded := make([]*NamedCredential, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			stage := StageInternal
			var failure *AccountParseFailure
			if errors.As(res.Err, &failure) {
				stage = failure.Stage
			}
			l.logger.Warn("Could not load account %s: %v", defs[i].Name, res.Err)
			l.recorder.RecordParseFailure(defs[i].Name, string(stage))
			continue
		}
		loaded = append(loaded, res.Credential)
	}

	snapshot := NewSnapshot(l.generation.Add(1), l.now(), loaded)
	l.recorder.RecordSnapshot(snapshot.Len(), snapshot.Generation())
	l.logger.Debug("generation %d: %d of %d accounts loaded", snapshot.Generation(), snapshot.Len(), len(defs))
	return snapshot, nil
}

func (l *Loader) parseOne(ctx context.Context, def config.AccountDefinition) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &AccountParseFailure{Account: def.Name, Stage: StageInternal, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()
	cred, err := l.parser.Parse(ctx, def)
	if err != nil {
		return Result{Err: err}
	}
	if cred == nil {
		return Result{Err: &AccountParseFailure{Account: def.Name, Stage: StageInternal, Err: errors.New("parser returned no credential")}}
	}
	return Result{Credential: cred}
}
