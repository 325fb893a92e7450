package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/bridge"
)

// Config controls metric naming and histogram buckets.
type Config struct {
	// Namespace prefixes every metric name. Default: "ganymede".
	Namespace string

	// RequestDurationBuckets are the histogram buckets for end-to-end
	// request duration in seconds. Defaults cover interactive LLM
	// latencies (100ms - 10m).
	RequestDurationBuckets []float64

	// QueueWaitBuckets are the histogram buckets for time spent waiting
	// for a free executor, in seconds.
	QueueWaitBuckets []float64
}

// BridgeStats is the snapshot surface the collector polls at scrape time.
// *bridge.Broker implements it.
type BridgeStats interface {
	Executors() []bridge.ExecutorInfo
	QueueStats() bridge.QueueStats
	ReadyExecutors() int
	InFlight() int
}

// Collector owns the Prometheus registry and all bridge metrics. It
// implements the broker's Observer interface for push-style measurements and
// polls a BridgeStats for gauge values at scrape time.
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	// Push-style broker metrics.
	requestsDispatched *prometheus.CounterVec
	requestsFinished   *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	queueWait          prometheus.Histogram
	framesDropped      prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg Config) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "ganymede"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}
	}
	if len(cfg.QueueWaitBuckets) == 0 {
		cfg.QueueWaitBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 90}
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		namespace: cfg.Namespace,

		requestsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_dispatched_total",
				Help:      "Requests handed to an executor, by model",
			},
			[]string{"model"},
		),

		requestsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_finished_total",
				Help:      "Finished requests by model and terminal status",
			},
			[]string{"model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"model"},
		),

		queueWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "queue_wait_seconds",
				Help:      "Time requests spent waiting for a free executor",
				Buckets:   cfg.QueueWaitBuckets,
			},
		),

		framesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "frames_dropped_total",
				Help:      "Executor frames that arrived with no matching request",
			},
		),
	}

	c.registry.MustRegister(
		c.requestsDispatched,
		c.requestsFinished,
		c.requestDuration,
		c.queueWait,
		c.framesDropped,
	)

	return c
}

// ObserveBridge registers scrape-time gauges backed by the broker's
// snapshots: executor counts by state, queue depth and queue counters.
func (c *Collector) ObserveBridge(stats BridgeStats) {
	namespace := c.namespace

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executors_connected",
			Help:      "Executor connections currently registered",
		},
		func() float64 { return float64(len(stats.Executors())) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executors_ready",
			Help:      "Executors ready to accept a task",
		},
		func() float64 { return float64(stats.ReadyExecutors()) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently dispatched or streaming",
		},
		func() float64 { return float64(stats.InFlight()) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Requests currently waiting for an executor",
		},
		func() float64 { return float64(stats.QueueStats().Depth) },
	))

	c.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_queued_total",
			Help:      "Requests that entered the wait queue",
		},
		func() float64 { return float64(stats.QueueStats().TotalQueued) },
	))

	c.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_timeouts_total",
			Help:      "Requests that timed out waiting in the queue",
		},
		func() float64 { return float64(stats.QueueStats().TotalTimeouts) },
	))

	c.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejected_total",
			Help:      "Requests rejected because no executor was available",
		},
		func() float64 { return float64(stats.QueueStats().TotalRejected) },
	))
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
