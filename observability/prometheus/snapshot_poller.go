package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/azargarov/taskq"
)

// StatsProvider provides current queue stats snapshots. Any
// taskq.Queue instantiation satisfies it.
type StatsProvider interface {
	Stats() taskq.Stats
}

// SnapshotPoller periodically exports queue Stats() snapshots into
// Prometheus gauges. It complements Exporter: the exporter observes
// the dispatch path as it happens, the poller publishes the cumulative
// counters and flags a queue reports about itself.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]StatsProvider

	waiting   *prom.GaugeVec
	running   *prom.GaugeVec
	submitted *prom.GaugeVec
	completed *prom.GaugeVec
	failed    *prom.GaugeVec
	timedOut  *prom.GaugeVec
	cleared   *prom.GaugeVec
	paused    *prom.GaugeVec
	closed    *prom.GaugeVec

	stateMu sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its
// collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	waiting := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_waiting",
		Help:      "Number of waiting tasks per queue.",
	}, []string{"queue"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_running",
		Help:      "Number of running tasks per queue.",
	}, []string{"queue"})
	submitted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_submitted_total",
		Help:      "Accepted task count snapshot.",
	}, []string{"queue"})
	completed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_completed_total",
		Help:      "Completed task count snapshot.",
	}, []string{"queue"})
	failed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_failed_total",
		Help:      "Failed task count snapshot.",
	}, []string{"queue"})
	timedOut := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_timed_out_total",
		Help:      "Abandoned task result count snapshot.",
	}, []string{"queue"})
	cleared := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_cleared_total",
		Help:      "Discarded waiting task count snapshot.",
	}, []string{"queue"})
	paused := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_paused",
		Help:      "Queue paused state (1=paused, 0=dispatching).",
	}, []string{"queue"})
	closed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskq",
		Name:      "queue_closed",
		Help:      "Queue closed state (1=closed, 0=open).",
	}, []string{"queue"})

	var err error
	if waiting, err = registerCollector(reg, waiting); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}
	if submitted, err = registerCollector(reg, submitted); err != nil {
		return nil, err
	}
	if completed, err = registerCollector(reg, completed); err != nil {
		return nil, err
	}
	if failed, err = registerCollector(reg, failed); err != nil {
		return nil, err
	}
	if timedOut, err = registerCollector(reg, timedOut); err != nil {
		return nil, err
	}
	if cleared, err = registerCollector(reg, cleared); err != nil {
		return nil, err
	}
	if paused, err = registerCollector(reg, paused); err != nil {
		return nil, err
	}
	if closed, err = registerCollector(reg, closed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:  interval,
		queues:    make(map[string]StatsProvider),
		waiting:   waiting,
		running:   running,
		submitted: submitted,
		completed: completed,
		failed:    failed,
		timedOut:  timedOut,
		cleared:   cleared,
		paused:    paused,
		closed:    closed,
	}, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider StatsProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "default")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// RemoveQueue stops polling the named queue.
func (p *SnapshotPoller) RemoveQueue(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "default")
	p.queuesMu.Lock()
	delete(p.queues, name)
	p.queuesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.active {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.active {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.active = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.queuesMu.RLock()
	defer p.queuesMu.RUnlock()

	for name, provider := range p.queues {
		stats := provider.Stats()
		p.waiting.WithLabelValues(name).Set(float64(stats.Waiting))
		p.running.WithLabelValues(name).Set(float64(stats.Running))
		p.submitted.WithLabelValues(name).Set(float64(stats.Submitted))
		p.completed.WithLabelValues(name).Set(float64(stats.Completed))
		p.failed.WithLabelValues(name).Set(float64(stats.Failed))
		p.timedOut.WithLabelValues(name).Set(float64(stats.TimedOut))
		p.cleared.WithLabelValues(name).Set(float64(stats.Cleared))
		p.paused.WithLabelValues(name).Set(boolGauge(stats.Paused))
		p.closed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
