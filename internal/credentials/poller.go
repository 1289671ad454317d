package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/metrics"
)

// SnapshotLoader produces a new snapshot per call. *Loader implements it.
type SnapshotLoader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// PollRecorder receives poller metrics. *metrics.Recorder implements it.
type PollRecorder interface {
	RecordPollCycle(success bool, durationSeconds float64)
}

// Poller reloads credentials on a fixed interval and on demand, publishing
// each good snapshot to a Repository.
type Poller struct {
	loader   SnapshotLoader
	repo     *Repository
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger
	recorder PollRecorder

	// cycleMu serializes cycles.
	cycleMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the time between scheduled cycles.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock sets the clock driving the schedule.
func WithClock(c clock.Clock) PollerOption {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithPollRecorder sets the metrics sink.
func WithPollRecorder(r PollRecorder) PollerOption {
	return func(p *Poller) {
		p.recorder = r
	}
}

// NewPoller creates a stopped poller.
func NewPoller(loader SnapshotLoader, repo *Repository, logger *logging.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		loader:   loader,
		repo:     repo,
		clock:    clock.WallClock,
		interval: config.DefaultPollInterval,
		logger:   logger.Named("poller"),
		recorder: metrics.NewRecorder(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs a cycle now and then every interval until Stop is called or
// ctx is done. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)
	p.logger.Info("credential polling started every %s", p.interval)
}

// Running reports whether the schedule is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stop halts the schedule and waits for the loop to exit. A cycle already
// in flight is allowed to finish and publish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("credential polling stopped")
}

// Synchronize runs one cycle now and blocks until it has completed. If a
// cycle is already running, this one runs right after it.
func (p *Poller) Synchronize(ctx context.Context) error {
	return p.runCycle(ctx)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.exited(done)

	// Scheduled cycles outlive Stop so that their result is still published.
	cycleCtx := context.WithoutCancel(ctx)
	for {
		_ = p.runCycle(cycleCtx)
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
		}
	}
}

// exited marks the poller stopped when its loop ends on its own, which
// happens when the context given to Start is done. Stop clears the fields
// itself, so a loop it stopped finds them already replaced.
func (p *Poller) exited(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != done {
		return
	}
	p.cancel()
	p.cancel, p.done = nil, nil
	p.logger.Info("credential polling stopped")
}

func (p *Poller) runCycle(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := p.clock.Now()
	snapshot, err := p.loader.Load(ctx)
	elapsed := p.clock.Now().Sub(start).Seconds()
	if err != nil {
		p.recorder.RecordPollCycle(false, elapsed)
		p.logger.Error("credential refresh failed, keeping generation %d: %v", p.repo.All().Generation(), err)
		return err
	}
	p.repo.Publish(snapshot)
	p.recorder.RecordPollCycle(true, elapsed)
	p.logger.Debug("published generation %d with %d accounts", snapshot.Generation(), snapshot.Len())
	return nil
}
