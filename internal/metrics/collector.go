package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// PoolStats is a capacity snapshot of one pool.
type PoolStats struct {
	ID      string
	Size    int64
	Usage   int64
	Volumes []VolumeStats
}

// VolumeStats is a capacity snapshot of one volume.
type VolumeStats struct {
	VID   string
	Size  int64
	Usage int64
}

// StatsSource reports pool capacity.
type StatsSource interface {
	Stats() PoolStats
}

// Collector exports pool and volume capacity gauges, read on every scrape.
type Collector struct {
	sources []StatsSource

	poolSize    *prometheus.Desc
	poolUsage   *prometheus.Desc
	volumeSize  *prometheus.Desc
	volumeUsage *prometheus.Desc
}

// NewCollector returns a Collector over sources.
func NewCollector(sources ...StatsSource) *Collector {
	return &Collector{
		sources: sources,
		poolSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "size_bytes"),
			"Thin pool size in bytes",
			[]string{"pool"}, nil,
		),
		poolUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "usage_bytes"),
			"Thin pool data usage in bytes",
			[]string{"pool"}, nil,
		),
		volumeSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "volume", "size_bytes"),
			"Volume size in bytes",
			[]string{"pool", "vid"}, nil,
		),
		volumeUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "volume", "usage_bytes"),
			"Volume data usage in bytes",
			[]string{"pool", "vid"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolSize
	ch <- c.poolUsage
	ch <- c.volumeSize
	ch <- c.volumeUsage
}

// Collect implements prometheus.Collector. Sources backed by the same thin
// pool are reported once.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	all := lo.Map(c.sources, func(src StatsSource, _ int) PoolStats { return src.Stats() })
	for _, stats := range lo.UniqBy(all, func(s PoolStats) string { return s.ID }) {
		ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(stats.Size), stats.ID)
		ch <- prometheus.MustNewConstMetric(c.poolUsage, prometheus.GaugeValue, float64(stats.Usage), stats.ID)

		for _, v := range stats.Volumes {
			ch <- prometheus.MustNewConstMetric(c.volumeSize, prometheus.GaugeValue, float64(v.Size), stats.ID, v.VID)
			ch <- prometheus.MustNewConstMetric(c.volumeUsage, prometheus.GaugeValue, float64(v.Usage), stats.ID, v.VID)
		}
	}
}
