// Package metric provides Prometheus metrics for SightingDB.
//
//   - prometheus.go: the Registry, request and storage counters, /metrics handler
//   - collector.go: a collector that reads engine gauges at scrape time
//
// Each Registry owns its own prometheus.Registry, so tests and embedded
// engines never collide on the global default registerer.
package metric
