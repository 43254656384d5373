package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docingest"

// Collector exposes a Registry as Prometheus metrics. Values are read from
// a snapshot on every scrape.
type Collector struct {
	reg *Registry

	counters [numCounters]*prometheus.Desc
	seconds  *prometheus.Desc
	ext      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(reg *Registry) *Collector {
	c := &Collector{reg: reg}
	for i := Counter(0); i < numCounters; i++ {
		name := counterNames[i]
		if i != FilesTotal && i != ChunksTotal {
			name += "_total"
		}
		c.counters[i] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name),
			"Ingestion counter "+counterNames[i]+".",
			nil, nil,
		)
	}
	c.seconds = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "stage", "seconds_total"),
		"Wall time accumulated per pipeline stage.",
		[]string{"stage"}, nil,
	)
	c.ext = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "extension", "files_total"),
		"Files seen per extension.",
		[]string{"ext"}, nil,
	)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.seconds
	ch <- c.ext
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counters, seconds, ext := c.reg.values()

	for i, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(counters[i]))
	}
	for i, v := range seconds {
		ch <- prometheus.MustNewConstMetric(c.seconds, prometheus.CounterValue, v, stageNames[i])
	}
	for e, n := range ext {
		ch <- prometheus.MustNewConstMetric(c.ext, prometheus.CounterValue, float64(n), e)
	}
}

// Handler serves the registry together with the Go runtime and process
// collectors in the Prometheus exposition format.
func Handler(reg *Registry) http.Handler {
	pr := prometheus.NewRegistry()
	pr.MustRegister(
		NewCollector(reg),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(pr, promhttp.HandlerOpts{})
}
