// Package task tracks the status of long-running operations.
//
// Every deploy or destroy runs under its own Task. Status updates are kept
// in the task history and forwarded to a Sink; sinks are never looked up
// globally, so concurrent tasks cannot see each other's updates.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/cloudrunops/internal/logging"
)

// Phases reported by the operation executor.
const (
	PhaseDeploy  = "DEPLOY"
	PhaseDestroy = "DESTROY_SERVER_GROUP"
)

// PublishTimeout bounds forwarding one event to a sink.
const PublishTimeout = 10 * time.Second

// State is the lifecycle state carried by an event.
type State string

const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Event is one status update of a task.
type Event struct {
	TaskID string    `json:"taskId"`
	Phase  string    `json:"phase"`
	Status string    `json:"status"`
	State  State     `json:"state"`
	Time   time.Time `json:"time"`
}

// Task receives status updates of one operation.
type Task interface {
	ID() string
	UpdateStatus(phase, status string)
	Complete(phase, status string)
	Fail(phase, status string)
}

// Sink accepts task events. The core writes to it but never reads back.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Tracked is the standard Task. It keeps its own history and forwards
// every event to the configured sinks.
type Tracked struct {
	id     string
	sinks  []Sink
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	history []Event
}

// Option configures a Tracked task.
type Option func(*Tracked)

// WithID uses a caller-supplied task id.
func WithID(id string) Option {
	return func(t *Tracked) { t.id = id }
}

// WithSink adds a sink.
func WithSink(sink Sink) Option {
	return func(t *Tracked) {
		if sink != nil {
			t.sinks = append(t.sinks, sink)
		}
	}
}

// WithLogger sets the logger for sink failures.
func WithLogger(logger *logging.Logger) Option {
	return func(t *Tracked) { t.logger = logger }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracked) { t.now = now }
}

// New creates a task with a random id.
func New(opts ...Option) *Tracked {
	t := &Tracked{
		id:  uuid.NewString(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.New(false, false)
	}
	t.logger = t.logger.Named("task")
	return t
}

// ID implements Task.
func (t *Tracked) ID() string {
	return t.id
}

// UpdateStatus implements Task.
func (t *Tracked) UpdateStatus(phase, status string) {
	t.record(phase, status, StateRunning)
}

// Complete implements Task.
func (t *Tracked) Complete(phase, status string) {
	t.record(phase, status, StateCompleted)
}

// Fail implements Task.
func (t *Tracked) Fail(phase, status string) {
	t.record(phase, status, StateFailed)
}

// History returns a copy of every event so far.
func (t *Tracked) History() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.history...)
}

// State returns the state of the latest event, or RUNNING if none.
func (t *Tracked) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return StateRunning
	}
	return t.history[len(t.history)-1].State
}

func (t *Tracked) record(phase, status string, state State) {
	event := Event{
		TaskID: t.id,
		Phase:  phase,
		Status: status,
		State:  state,
		Time:   t.now().UTC(),
	}

	t.mu.Lock()
	t.history = append(t.history, event)
	t.mu.Unlock()

	t.logger.Debug("%s %s: %s", t.id, phase, status)
	for _, sink := range t.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		// Status delivery never fails the operation itself.
		if err := sink.Publish(ctx, event); err != nil {
			t.logger.Warn("failed to publish status of task %s: %v", t.id, err)
		}
		cancel()
	}
}
