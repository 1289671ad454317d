package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Credential lifecycle metrics
	pollCyclesTotal      *prometheus.CounterVec
	pollDuration         prometheus.Histogram
	accountsLoaded       prometheus.Gauge
	accountParseFailures *prometheus.CounterVec
	snapshotGeneration   prometheus.Gauge

	// Operation metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	commandDuration   *prometheus.HistogramVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// Recorder provides methods to record cloudrunops metrics.
// Every method is a no-op until InitMetrics has been called.
type Recorder struct{}

// NewRecorder creates a new Recorder instance.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// InitMetrics initializes all Prometheus metrics.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		pollCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudrunops_poll_cycles_total",
				Help: "Total number of credential poll cycles by result",
			},
			[]string{"result"},
		)

		pollDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cloudrunops_poll_duration_seconds",
				Help:    "Duration of credential poll cycles in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
			},
		)

		accountsLoaded = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cloudrunops_accounts_loaded",
				Help: "Number of accounts in the published credential snapshot",
			},
		)

		accountParseFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudrunops_account_parse_failures_total",
				Help: "Total number of accounts dropped while loading credentials",
			},
			[]string{"account", "stage"},
		)

		snapshotGeneration = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cloudrunops_snapshot_generation",
				Help: "Generation of the published credential snapshot",
			},
		)

		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudrunops_operations_total",
				Help: "Total number of deploy and destroy operations by result",
			},
			[]string{"operation", "account", "result"},
		)

		operationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudrunops_operation_duration_seconds",
				Help:    "Duration of deploy and destroy operations in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		)

		commandDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudrunops_command_duration_seconds",
				Help:    "Duration of external provisioning commands in seconds",
				Buckets: []float64{0.1, 1, 5, 30, 60, 300, 600},
			},
			[]string{"command", "result"},
		)

		metricsRegistered = true
	})
}

// RecordPollCycle records the result and duration of one poll cycle.
func (m *Recorder) RecordPollCycle(success bool, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	pollCyclesTotal.WithLabelValues(resultLabel(success)).Inc()
	pollDuration.Observe(durationSeconds)
}

// RecordSnapshot records the size and generation of a published snapshot.
func (m *Recorder) RecordSnapshot(accounts int, generation uint64) {
	if !metricsRegistered {
		return
	}
	accountsLoaded.Set(float64(accounts))
	snapshotGeneration.Set(float64(generation))
}

// RecordParseFailure records an account dropped during loading.
func (m *Recorder) RecordParseFailure(account, stage string) {
	if !metricsRegistered {
		return
	}
	accountParseFailures.WithLabelValues(account, stage).Inc()
}

// RecordOperation records a completed deploy or destroy operation.
func (m *Recorder) RecordOperation(operation, account string, success bool, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	operationsTotal.WithLabelValues(operation, account, resultLabel(success)).Inc()
	operationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordCommand records one external command invocation.
func (m *Recorder) RecordCommand(command, result string, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	commandDuration.WithLabelValues(command, result).Observe(durationSeconds)
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// GetPollCyclesTotal returns the poll cycle counter for testing.
func GetPollCyclesTotal() *prometheus.CounterVec {
	return pollCyclesTotal
}

// GetAccountsLoaded returns the accounts gauge for testing.
func GetAccountsLoaded() prometheus.Gauge {
	return accountsLoaded
}

// GetAccountParseFailures returns the parse failure counter for testing.
func GetAccountParseFailures() *prometheus.CounterVec {
	return accountParseFailures
}

// GetOperationsTotal returns the operations counter for testing.
func GetOperationsTotal() *prometheus.CounterVec {
	return operationsTotal
}

// GetCommandDuration returns the command duration histogram for testing.
func GetCommandDuration() *prometheus.HistogramVec {
	return commandDuration
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
