package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedLoader hands out numbered snapshots, or errors while failing.
type scriptedLoader struct {
	mu       sync.Mutex
	calls    int
	failing  bool
	gate     chan struct{}
	entered  chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (l *scriptedLoader) Load(ctx context.Context) (*Snapshot, error) {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	if n > l.peak.Load() {
		l.peak.Store(n)
	}

	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failing {
		return nil, &LoadCycleFailure{Err: errors.New("source unavailable")}
	}
	return NewSnapshot(uint64(l.calls), time.Time{}, []*NamedCredential{{Name: "dev"}}), nil
}

func (l *scriptedLoader) setFailing(failing bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing = failing
}

func (l *scriptedLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakePollRecorder struct {
	successes atomic.Int32
	failures  atomic.Int32
}

func (r *fakePollRecorder) RecordPollCycle(success bool, durationSeconds float64) {
	if success {
		r.successes.Add(1)
	} else {
		r.failures.Add(1)
	}
}

func TestPoller_Schedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loader := &scriptedLoader{}
	repo := NewRepository()
	p := NewPoller(loader, repo, testLogger(), WithClock(clk), WithInterval(time.Minute), WithPollRecorder(&fakePollRecorder{}))

	assert.False(t, p.Running())
	p.Start(context.Background())
	p.Start(context.Background())
	assert.True(t, p.Running())

	// first cycle runs immediately, then one per interval
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	require.Eventually(t, func() bool { return repo.All().Generation() >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	calls := loader.callCount()
	clk.Advance(10 * time.Minute)
	assert.Equal(t, calls, loader.callCount())

	p.Stop()
}

func TestPoller_FailureKeepsPreviousSnapshot(t *testing.T) {
	loader := &scriptedLoader{}
	repo := NewRepository()
	recorder := &fakePollRecorder{}
	p := NewPoller(loader, repo, testLogger(), WithPollRecorder(recorder))

	require.NoError(t, p.Synchronize(context.Background()))
	before := repo.All()
	assert.Equal(t, uint64(1), before.Generation())

	loader.setFailing(true)
	err := p.Synchronize(context.Background())
	var failure *LoadCycleFailure
	require.ErrorAs(t, err, &failure)
	assert.Same(t, before, repo.All())

	loader.setFailing(false)
	require.NoError(t, p.Synchronize(context.Background()))
	assert.Equal(t, uint64(3), repo.All().Generation())

	assert.Equal(t, int32(2), recorder.successes.Load())
	assert.Equal(t, int32(1), recorder.failures.Load())
}

func TestPoller_SynchronizeWhileStopped(t *testing.T) {
	repo := NewRepository()
	p := NewPoller(&scriptedLoader{}, repo, testLogger(), WithPollRecorder(&fakePollRecorder{}))

	require.NoError(t, p.Synchronize(context.Background()))
	assert.False(t, p.Running())
	_, err := repo.Get("dev")
	assert.NoError(t, err)
}

func TestPoller_CyclesNeverOverlap(t *testing.T) {
	loader := &scriptedLoader{}
	p := NewPoller(loader, NewRepository(), testLogger(), WithPollRecorder(&fakePollRecorder{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Synchronize(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, loader.callCount())
	assert.Equal(t, int32(1), loader.peak.Load())
}

func TestPoller_StopLetsInFlightCyclePublish(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := testclock.NewClock(time.Time{})
	loader := &scriptedLoader{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	repo := NewRepository()
	p := NewPoller(loader, repo, testLogger(), WithClock(clk), WithPollRecorder(&fakePollRecorder{}))

	p.Start(context.Background())
	<-loader.entered

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(loader.gate)
	<-stopped
	assert.Equal(t, uint64(1), repo.All().Generation())
}

func TestPoller_ParentContextEndsSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := testclock.NewClock(time.Time{})
	loader := &scriptedLoader{}
	p := NewPoller(loader, NewRepository(), testLogger(), WithClock(clk), WithPollRecorder(&fakePollRecorder{}))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, clk.WaitAdvance(0, time.Second, 1))
	cancel()

	p.Stop()
	assert.Equal(t, 1, loader.callCount())
}

func TestPoller_RestartsAfterParentContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := testclock.NewClock(time.Time{})
	loader := &scriptedLoader{}
	p := NewPoller(loader, NewRepository(), testLogger(), WithClock(clk), WithPollRecorder(&fakePollRecorder{}))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, clk.WaitAdvance(0, time.Second, 1))
	cancel()

	require.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, loader.callCount())

	p.Start(context.Background())
	assert.True(t, p.Running())
	require.Eventually(t, func() bool { return loader.callCount() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
}
