// Package promexport exposes the profiler's aggregate indexes as Prometheus
// metrics in the text exposition format, for scrapers that want the same
// numbers the dashboard shows.
package promexport

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/httpscope/httpscope/internal/aggregate"
	"github.com/httpscope/httpscope/internal/profiler"
)

var (
	requestsDesc = prometheus.NewDesc(
		"httpscope_request_duration_seconds",
		"Per-endpoint request latency summary.",
		[]string{"method", "path"}, nil)
	requestFailuresDesc = prometheus.NewDesc(
		"httpscope_request_failures_total",
		"Per-endpoint count of requests that ended in a server error.",
		[]string{"method", "path"}, nil)
	responsesDesc = prometheus.NewDesc(
		"httpscope_responses_total",
		"Per-endpoint response counts by status code.",
		[]string{"method", "path", "status"}, nil)
	queriesDesc = prometheus.NewDesc(
		"httpscope_db_query_duration_seconds",
		"Per-engine database query latency summary.",
		[]string{"engine"}, nil)
	queryFailuresDesc = prometheus.NewDesc(
		"httpscope_db_query_failures_total",
		"Per-engine count of failed database queries.",
		[]string{"engine"}, nil)
)

// Collector adapts one profiler instance to the prometheus.Collector
// interface. Every scrape reads a fresh snapshot of the aggregate indexes.
type Collector struct {
	prof *profiler.Profiler
}

func NewCollector(prof *profiler.Profiler) *Collector {
	return &Collector{prof: prof}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- requestFailuresDesc
	ch <- responsesDesc
	ch <- queriesDesc
	ch <- queryFailuresDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for key, v := range c.prof.Pipeline().Endpoints().Snapshot() {
		ch <- prometheus.MustNewConstSummary(requestsDesc,
			uint64(v.Count), v.Sum.Seconds(), quantiles(v), key.Method, key.Path)
		ch <- prometheus.MustNewConstMetric(requestFailuresDesc,
			prometheus.CounterValue, float64(v.Failures), key.Method, key.Path)
		for status, n := range v.Statuses {
			ch <- prometheus.MustNewConstMetric(responsesDesc,
				prometheus.CounterValue, float64(n), key.Method, key.Path, strconv.Itoa(status))
		}
	}

	for engine, v := range c.prof.Pipeline().Engines().Snapshot() {
		ch <- prometheus.MustNewConstSummary(queriesDesc,
			uint64(v.Count), v.Sum.Seconds(), quantiles(v), engine)
		ch <- prometheus.MustNewConstMetric(queryFailuresDesc,
			prometheus.CounterValue, float64(v.Failures), engine)
	}
}

func quantiles(v aggregate.View) map[float64]float64 {
	return map[float64]float64{
		0.5:  v.P50.Seconds(),
		0.9:  v.P90.Seconds(),
		0.95: v.P95.Seconds(),
		0.99: v.P99.Seconds(),
	}
}

// Exporter owns a private registry so profiler metrics never collide with an
// application's own instrumentation.
type Exporter struct {
	registry *prometheus.Registry
}

func New(prof *profiler.Profiler) (*Exporter, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(prof)); err != nil {
		return nil, err
	}
	return &Exporter{registry: registry}, nil
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		families, err := e.registry.Gather()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, format)
		for _, mf := range families {
			if err := encoder.Encode(mf); err != nil {
				http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", string(format))
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	})
}

var _ prometheus.Collector = (*Collector)(nil)
