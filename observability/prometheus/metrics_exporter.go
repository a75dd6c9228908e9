// Package prometheus adapts taskq observability to Prometheus
// collectors: an Exporter implementing taskq.Metrics for the dispatch
// path, and a SnapshotPoller exporting Stats snapshots into gauges.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/azargarov/taskq"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// WaitBuckets are the queue-wait histogram buckets in seconds.
	WaitBuckets []float64

	// DurationBuckets are the task-runtime histogram buckets in seconds.
	DurationBuckets []float64
}

// Exporter adapts taskq.Metrics to Prometheus collectors. Every
// collector carries the queue name as a const label, so several queues
// can share one registry without colliding.
type Exporter struct {
	enqueuedTotal prom.Counter
	clearedTotal  prom.Counter
	settledTotal  *prom.CounterVec
	queueWait     prom.Histogram
	taskDuration  *prom.HistogramVec
	depthWaiting  prom.Gauge
	depthRunning  prom.Gauge
}

var _ taskq.Metrics = (*Exporter)(nil)

// NewExporter creates and registers Prometheus collectors implementing
// taskq.Metrics for the named queue. Pass the result in
// taskq.Options.Metrics.
func NewExporter(queueName string, reg prom.Registerer, opts ExporterOptions) (*Exporter, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	queueName = normalizeLabel(queueName, "default")
	constLabels := prom.Labels{"queue": queueName}

	waitBuckets := opts.WaitBuckets
	if len(waitBuckets) == 0 {
		waitBuckets = prom.DefBuckets
	}
	durationBuckets := opts.DurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prom.DefBuckets
	}

	enqueued := prom.NewCounter(prom.CounterOpts{
		Namespace:   "taskq",
		Name:        "tasks_enqueued_total",
		Help:        "Total number of tasks accepted into the waiting set.",
		ConstLabels: constLabels,
	})
	cleared := prom.NewCounter(prom.CounterOpts{
		Namespace:   "taskq",
		Name:        "tasks_cleared_total",
		Help:        "Total number of waiting tasks discarded by Clear or Close.",
		ConstLabels: constLabels,
	})
	settled := prom.NewCounterVec(prom.CounterOpts{
		Namespace:   "taskq",
		Name:        "tasks_settled_total",
		Help:        "Total number of started tasks by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	wait := prom.NewHistogram(prom.HistogramOpts{
		Namespace:   "taskq",
		Name:        "task_queue_wait_seconds",
		Help:        "Time tasks spent waiting before dispatch.",
		ConstLabels: constLabels,
		Buckets:     waitBuckets,
	})
	duration := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace:   "taskq",
		Name:        "task_duration_seconds",
		Help:        "Task runtime until its result was observed, by outcome.",
		ConstLabels: constLabels,
		Buckets:     durationBuckets,
	}, []string{"outcome"})
	waiting := prom.NewGauge(prom.GaugeOpts{
		Namespace:   "taskq",
		Name:        "depth_waiting",
		Help:        "Current number of waiting tasks.",
		ConstLabels: constLabels,
	})
	running := prom.NewGauge(prom.GaugeOpts{
		Namespace:   "taskq",
		Name:        "depth_running",
		Help:        "Current number of running tasks.",
		ConstLabels: constLabels,
	})

	var err error
	if enqueued, err = registerCollector(reg, enqueued); err != nil {
		return nil, err
	}
	if cleared, err = registerCollector(reg, cleared); err != nil {
		return nil, err
	}
	if settled, err = registerCollector(reg, settled); err != nil {
		return nil, err
	}
	if wait, err = registerCollector(reg, wait); err != nil {
		return nil, err
	}
	if duration, err = registerCollector(reg, duration); err != nil {
		return nil, err
	}
	if waiting, err = registerCollector(reg, waiting); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}

	return &Exporter{
		enqueuedTotal: enqueued,
		clearedTotal:  cleared,
		settledTotal:  settled,
		queueWait:     wait,
		taskDuration:  duration,
		depthWaiting:  waiting,
		depthRunning:  running,
	}, nil
}

// IncEnqueued counts an accepted task.
func (m *Exporter) IncEnqueued() {
	if m == nil {
		return
	}
	m.enqueuedTotal.Inc()
}

// AddCleared counts discarded waiting tasks.
func (m *Exporter) AddCleared(n int64) {
	if m == nil {
		return
	}
	m.clearedTotal.Add(float64(n))
}

// RecordStart observes the queue wait of a dispatched task.
func (m *Exporter) RecordStart(queueWait time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(queueWait.Seconds())
}

// RecordSuccess counts a completed task and observes its runtime.
func (m *Exporter) RecordSuccess(d time.Duration) {
	m.recordSettled("success", d)
}

// RecordFailure counts a failed task and observes its runtime.
func (m *Exporter) RecordFailure(d time.Duration) {
	m.recordSettled("failure", d)
}

// RecordTimeout counts an abandoned task result.
func (m *Exporter) RecordTimeout(d time.Duration) {
	m.recordSettled("timeout", d)
}

// SetDepth records the current waiting and running counts.
func (m *Exporter) SetDepth(waiting, running int) {
	if m == nil {
		return
	}
	m.depthWaiting.Set(float64(waiting))
	m.depthRunning.Set(float64(running))
}

func (m *Exporter) recordSettled(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.settledTotal.WithLabelValues(outcome).Inc()
	m.taskDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
