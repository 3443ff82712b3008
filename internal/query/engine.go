// Package query is the read side of the profiler: time-window filtering,
// sorting, searching, pagination, top-N and time-bucketed series over the
// bounded stores. Every operation is read-only and degrades malformed
// parameters to defaults; the dashboard always gets something to render.
package query

import (
	"sort"
	"time"

	"github.com/httpscope/httpscope/internal/aggregate"
	"github.com/httpscope/httpscope/internal/event"
	"github.com/httpscope/httpscope/internal/ingest"
	"github.com/httpscope/httpscope/internal/ring"
)

// Options configure an Engine.
type Options struct {
	DefaultPageSize int              // page size when a request supplies none (default 10)
	MaxPageSize     int              // upper bound on page size (default 500)
	Clock           func() time.Time // injectable for tests
}

func (o *Options) normalize() {
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 10
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 500
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Engine serves dashboard reads over the pipeline's stores. Reads never block
// ingestion beyond the stores' short critical sections.
type Engine struct {
	requests  *ring.Ring[event.RequestEvent]
	queries   *ring.Ring[event.QueryEvent]
	external  *ring.Ring[event.ExternalCallEvent]
	endpoints *aggregate.Index[event.EndpointKey]
	engines   *aggregate.Index[string]
	opts      Options
}

// NewEngine creates a read engine over the pipeline's stores.
func NewEngine(p *ingest.Pipeline, opts Options) *Engine {
	opts.normalize()
	return &Engine{
		requests:  p.Requests(),
		queries:   p.Queries(),
		external:  p.External(),
		endpoints: p.Endpoints(),
		engines:   p.Engines(),
		opts:      opts,
	}
}

func (e *Engine) now() time.Time { return e.opts.Clock() }

// windowed returns request events inside the trailing window, oldest first.
// window <= 0 means everything the ring retains.
func (e *Engine) windowed(window time.Duration) []event.RequestEvent {
	if window <= 0 {
		return e.requests.Snapshot(0, false)
	}
	cutoff := e.now().Add(-window)
	return e.requests.Filter(func(ev event.RequestEvent) bool {
		return !ev.Timestamp.Before(cutoff)
	})
}

// TotalStats summarizes all requests. With window <= 0 the figures come from
// the aggregate index and cover the full process lifetime, beyond ring
// eviction; with a window they are computed exactly over the retained events
// in range.
type TotalStats struct {
	Count           int64         `json:"count"`
	UniqueEndpoints int           `json:"unique_endpoints"`
	Avg             time.Duration `json:"-"`
	P90             time.Duration `json:"-"`
	P95             time.Duration `json:"-"`
	Max             time.Duration `json:"-"`
	AvgMs           float64       `json:"avg_ms"`
	P90Ms           float64       `json:"p90_ms"`
	P95Ms           float64       `json:"p95_ms"`
	MaxMs           float64       `json:"max_ms"`
}

func (s *TotalStats) fillMs() {
	s.AvgMs = event.Ms(s.Avg)
	s.P90Ms = event.Ms(s.P90)
	s.P95Ms = event.Ms(s.P95)
	s.MaxMs = event.Ms(s.Max)
}

// TotalStats returns request totals for the trailing window, or for all data
// when window <= 0.
func (e *Engine) TotalStats(window time.Duration) TotalStats {
	if window <= 0 {
		g := e.endpoints.Global()
		s := TotalStats{
			Count:           g.Count,
			UniqueEndpoints: e.endpoints.Len(),
			Avg:             g.Avg,
			P90:             g.P90,
			P95:             g.P95,
			Max:             g.Max,
		}
		s.fillMs()
		return s
	}

	events := e.windowed(window)
	s := TotalStats{Count: int64(len(events))}
	if len(events) == 0 {
		return s
	}

	durations := make([]time.Duration, 0, len(events))
	var sum time.Duration
	seen := make(map[event.EndpointKey]struct{})
	for _, ev := range events {
		durations = append(durations, ev.Duration)
		sum += ev.Duration
		if ev.Duration > s.Max {
			s.Max = ev.Duration
		}
		seen[ev.Key()] = struct{}{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	s.UniqueEndpoints = len(seen)
	s.Avg = sum / time.Duration(len(events))
	s.P90 = Percentile(durations, 90)
	s.P95 = Percentile(durations, 95)
	s.fillMs()
	return s
}

// Percentile computes the p-th percentile of an ascending-sorted sample using
// nearest rank with linear interpolation between the two bounding order
// statistics: rank = p/100 * (n-1), result = s[floor] + frac*(s[floor+1]-s[floor]).
// For [10,20,30,40,50,100]ms this puts p90 at 75ms.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + time.Duration(frac*float64(sorted[lo+1]-sorted[lo]))
}

// RequestsByMethod counts retained requests per HTTP method.
func (e *Engine) RequestsByMethod(window time.Duration) map[string]int64 {
	out := make(map[string]int64)
	for _, ev := range e.windowed(window) {
		out[ev.Method]++
	}
	return out
}

// StatusCodeDistribution counts requests per status code. All-time figures
// come from the aggregate index and survive ring eviction.
func (e *Engine) StatusCodeDistribution(window time.Duration) map[int]int64 {
	if window <= 0 {
		return e.endpoints.Global().Statuses
	}
	out := make(map[int]int64)
	for _, ev := range e.windowed(window) {
		out[ev.StatusCode]++
	}
	return out
}

// EndpointDistribution counts requests per endpoint key string.
func (e *Engine) EndpointDistribution(window time.Duration) map[string]int64 {
	out := make(map[string]int64)
	if window <= 0 {
		for key, v := range e.endpoints.Snapshot() {
			out[key.String()] = v.Count
		}
		return out
	}
	for _, ev := range e.windowed(window) {
		out[ev.Key().String()]++
	}
	return out
}

// DBStats summarizes database activity per engine plus overall totals.
type DBStats struct {
	TotalQueries int64       `json:"total_queries"`
	Failures     int64       `json:"failures"`
	AvgMs        float64     `json:"avg_ms"`
	MaxMs        float64     `json:"max_ms"`
	Engines      []EngineRow `json:"engines"`
}

// EngineRow is the per-database-engine aggregate view.
type EngineRow struct {
	Engine   string  `json:"engine"`
	Count    int64   `json:"count"`
	Failures int64   `json:"failures"`
	AvgMs    float64 `json:"avg_ms"`
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	P90Ms    float64 `json:"p90_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// DBStats returns all-time database aggregates.
func (e *Engine) DBStats() DBStats {
	g := e.engines.Global()
	stats := DBStats{
		TotalQueries: g.Count,
		Failures:     g.Failures,
		AvgMs:        event.Ms(g.Avg),
		MaxMs:        event.Ms(g.Max),
	}
	for engine, v := range e.engines.Snapshot() {
		stats.Engines = append(stats.Engines, EngineRow{
			Engine:   engine,
			Count:    v.Count,
			Failures: v.Failures,
			AvgMs:    event.Ms(v.Avg),
			MinMs:    event.Ms(v.Min),
			MaxMs:    event.Ms(v.Max),
			P90Ms:    event.Ms(v.P90),
			P95Ms:    event.Ms(v.P95),
		})
	}
	sort.Slice(stats.Engines, func(i, j int) bool {
		if stats.Engines[i].Count == stats.Engines[j].Count {
			return stats.Engines[i].Engine < stats.Engines[j].Engine
		}
		return stats.Engines[i].Count > stats.Engines[j].Count
	})
	return stats
}

// RecentQueries returns one page of query events, newest first, with the
// total retained count.
func (e *Engine) RecentQueries(page, pageSize int) ([]event.QueryEvent, int) {
	all := e.queries.Snapshot(0, true)
	lo, hi := e.pageBounds(len(all), page, pageSize)
	return all[lo:hi], len(all)
}

// SlowestQueries returns the limit slowest retained queries, slowest first.
func (e *Engine) SlowestQueries(limit int) []event.QueryEvent {
	all := e.queries.Snapshot(0, true)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Duration > all[j].Duration
	})
	if limit <= 0 {
		limit = 5
	}
	if limit > len(all) {
		limit = len(all)
	}
	return all[:limit]
}

// RecentExternalCalls returns one page of external-call events, newest first.
func (e *Engine) RecentExternalCalls(page, pageSize int) ([]event.ExternalCallEvent, int) {
	all := e.external.Snapshot(0, true)
	lo, hi := e.pageBounds(len(all), page, pageSize)
	return all[lo:hi], len(all)
}

// RequestDetail couples one request with the retained query and external-call
// events attributed to its endpoint.
type RequestDetail struct {
	Request  event.RequestEvent        `json:"request"`
	Queries  []event.QueryEvent        `json:"queries"`
	External []event.ExternalCallEvent `json:"external_calls"`
}

// RequestDetail looks up a retained request by ID.
func (e *Engine) RequestDetail(id string) (RequestDetail, bool) {
	matches := e.requests.Filter(func(ev event.RequestEvent) bool { return ev.ID == id })
	if len(matches) == 0 {
		return RequestDetail{}, false
	}
	req := matches[0]
	key := req.Key()
	return RequestDetail{
		Request: req,
		Queries: e.queries.Filter(func(q event.QueryEvent) bool {
			return q.Endpoint == key
		}),
		External: e.external.Filter(func(c event.ExternalCallEvent) bool {
			return c.Endpoint == key
		}),
	}, true
}
