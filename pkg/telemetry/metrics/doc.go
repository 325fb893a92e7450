// Package metrics exposes the bridge's Prometheus metrics.
//
// The Collector owns a private registry and registers three metric groups:
//
//   - broker: requests dispatched/finished, queue wait and request duration
//     histograms, dropped frames
//   - executors: connected/ready/busy gauges fed by a snapshot callback at
//     scrape time
//   - queue: depth gauge plus queued/timeout/rejected counters, also fed at
//     scrape time
//
// The Collector implements the broker's Observer interface, so wiring it is
// one argument at broker construction:
//
//	collector := metrics.NewCollector(metrics.Config{})
//	collector.ObserveBridge(broker)
//	b := bridge.NewBroker(cfg, pool, registry, recorder, collector)
//	mux.Handle("/metrics", collector.Handler())
package metrics
