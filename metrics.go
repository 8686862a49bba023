package coldcache

import "github.com/prometheus/client_golang/prometheus"

// cacheCollector adapts a Cache's Statistics and store sizes into a
// prometheus.Collector, following the same pattern irodsfs-pool and
// objectfs use to expose their own cache metrics: one collector per
// instance, describing and collecting on demand rather than caching
// samples between scrapes.
type cacheCollector struct {
	cache *Cache

	hitDesc          *prometheus.Desc
	missDesc         *prometheus.Desc
	memorySizeDesc   *prometheus.Desc
	diskSizeDesc     *prometheus.Desc
	sparsenessDesc   *prometheus.Desc
}

// NewCollector returns a prometheus.Collector exposing c's statistics.
// Register it with a prometheus.Registerer to scrape it; coldcache never
// touches the default global registry itself.
func NewCollector(c *Cache) prometheus.Collector {
	constLabels := prometheus.Labels{"cache": c.Name()}

	return &cacheCollector{
		cache: c,
		hitDesc: prometheus.NewDesc(
			"coldcache_hits_total", "Cache hits by tier.",
			[]string{"tier"}, constLabels,
		),
		missDesc: prometheus.NewDesc(
			"coldcache_misses_total", "Cache misses by reason.",
			[]string{"reason"}, constLabels,
		),
		memorySizeDesc: prometheus.NewDesc(
			"coldcache_memory_elements", "Elements currently held in the memory tier.",
			nil, constLabels,
		),
		diskSizeDesc: prometheus.NewDesc(
			"coldcache_disk_elements", "Elements currently held in the disk tier.",
			nil, constLabels,
		),
		sparsenessDesc: prometheus.NewDesc(
			"coldcache_disk_sparseness_ratio", "Fraction of the disk store's data file that is not live payload.",
			nil, constLabels,
		),
	}
}

func (cc *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.hitDesc
	ch <- cc.missDesc
	ch <- cc.memorySizeDesc
	ch <- cc.diskSizeDesc
	ch <- cc.sparsenessDesc
}

func (cc *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := cc.cache.Statistics()

	ch <- prometheus.MustNewConstMetric(cc.hitDesc, prometheus.CounterValue, float64(s.MemoryStoreHitCount), "memory")
	ch <- prometheus.MustNewConstMetric(cc.hitDesc, prometheus.CounterValue, float64(s.DiskStoreHitCount), "disk")
	ch <- prometheus.MustNewConstMetric(cc.missDesc, prometheus.CounterValue, float64(s.MissCountNotFound), "not_found")
	ch <- prometheus.MustNewConstMetric(cc.missDesc, prometheus.CounterValue, float64(s.MissCountExpired), "expired")

	ch <- prometheus.MustNewConstMetric(cc.memorySizeDesc, prometheus.GaugeValue, float64(cc.cache.mem.Size()))

	if cc.cache.disk != nil {
		ch <- prometheus.MustNewConstMetric(cc.diskSizeDesc, prometheus.GaugeValue, float64(cc.cache.disk.Size()))
		ch <- prometheus.MustNewConstMetric(cc.sparsenessDesc, prometheus.GaugeValue, cc.cache.disk.Sparseness())
	}
}
