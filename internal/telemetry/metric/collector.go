package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StorageStats is a point-in-time view of the storage engine.
type StorageStats struct {
	Namespaces   int
	Records      int
	ReadOnly     bool
	WALBytes     int64
	WALSegments  int
	LastSnapshot int64 // unix seconds, 0 if none
}

// StatsFunc returns current storage statistics. It is called on every
// scrape and must be safe for concurrent use.
type StatsFunc func() StorageStats

// Collector exposes StorageStats as gauges.
type Collector struct {
	stats StatsFunc

	namespaces   *prometheus.Desc
	records      *prometheus.Desc
	readOnly     *prometheus.Desc
	walBytes     *prometheus.Desc
	walSegments  *prometheus.Desc
	lastSnapshot *prometheus.Desc
}

// NewCollector creates a collector backed by stats.
func NewCollector(stats StatsFunc) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		stats:        stats,
		namespaces:   desc("namespaces", "Namespaces held in memory."),
		records:      desc("records", "Sighting records held in memory."),
		readOnly:     desc("read_only", "1 when writes are refused after repeated WAL failures."),
		walBytes:     desc("wal_bytes", "Total size of WAL segments on disk."),
		walSegments:  desc("wal_segments", "Number of WAL segments on disk."),
		lastSnapshot: desc("last_snapshot_timestamp_seconds", "Unix time of the last successful snapshot."),
	}
}

// RegisterStorage exposes the engine statistics returned by stats.
func (r *Registry) RegisterStorage(stats StatsFunc) error {
	return r.Register(NewCollector(stats))
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.namespaces
	ch <- c.records
	ch <- c.readOnly
	ch <- c.walBytes
	ch <- c.walSegments
	ch <- c.lastSnapshot
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	readOnly := 0.0
	if s.ReadOnly {
		readOnly = 1
	}
	ch <- prometheus.MustNewConstMetric(c.namespaces, prometheus.GaugeValue, float64(s.Namespaces))
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(s.Records))
	ch <- prometheus.MustNewConstMetric(c.readOnly, prometheus.GaugeValue, readOnly)
	ch <- prometheus.MustNewConstMetric(c.walBytes, prometheus.GaugeValue, float64(s.WALBytes))
	ch <- prometheus.MustNewConstMetric(c.walSegments, prometheus.GaugeValue, float64(s.WALSegments))
	ch <- prometheus.MustNewConstMetric(c.lastSnapshot, prometheus.GaugeValue, float64(s.LastSnapshot))
}
