// Package profiler wires the write-side pipeline and the read-side query
// engine into one explicitly constructed aggregation context, and provides
// the HTTP middleware and database hooks that feed it. Multiple independent
// Profiler instances may coexist, which keeps tests hermetic.
package profiler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/httpscope/httpscope/internal/event"
	"github.com/httpscope/httpscope/internal/ingest"
	"github.com/httpscope/httpscope/internal/query"
)

// Options configure a Profiler. The zero value is usable.
type Options struct {
	RequestCapacity  int
	QueryCapacity    int
	ExternalCapacity int
	ExcludePaths     []string
	PageSize         int
	MaxPageSize      int
	Logger           *zap.Logger
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Profiler is the owned aggregation context: it holds the event stores and
// aggregate indexes and exposes the instrumentation entry points.
type Profiler struct {
	pipeline *ingest.Pipeline
	engine   *query.Engine
	log      *zap.Logger
	clock    func() time.Time
}

// New builds a Profiler. Capacity errors surface here, at startup, never
// during request handling.
func New(opts Options) (*Profiler, error) {
	opts.normalize()

	pipeline, err := ingest.New(ingest.Options{
		RequestCapacity:  opts.RequestCapacity,
		QueryCapacity:    opts.QueryCapacity,
		ExternalCapacity: opts.ExternalCapacity,
		ExcludePaths:     opts.ExcludePaths,
	})
	if err != nil {
		return nil, err
	}

	return &Profiler{
		pipeline: pipeline,
		engine: query.NewEngine(pipeline, query.Options{
			DefaultPageSize: opts.PageSize,
			MaxPageSize:     opts.MaxPageSize,
		}),
		log:   opts.Logger,
		clock: time.Now,
	}, nil
}

// Pipeline exposes the write path, for adapters that ingest events directly.
func (p *Profiler) Pipeline() *ingest.Pipeline { return p.pipeline }

// Engine exposes the read-only query surface.
func (p *Profiler) Engine() *query.Engine { return p.engine }

// TrackQuery records one completed database statement, attributing it to the
// request active on ctx when there is one.
func (p *Profiler) TrackQuery(ctx context.Context, queryText string, d time.Duration, engine string, success bool) {
	p.pipeline.IngestQuery(endpointFromContext(ctx), queryText, d, engine, success)
}

// AddExternalCall records one completed outbound call (another service, a
// cache, a third-party API) made while serving the request active on ctx.
func (p *Profiler) AddExternalCall(ctx context.Context, url, method string, d time.Duration) {
	p.pipeline.IngestExternal(endpointFromContext(ctx), url, method, d)
}

// Tracker returns a per-engine query tracker for adapters that bracket
// statement execution with before/after hooks.
func (p *Profiler) Tracker(engine string) *QueryTracker {
	return &QueryTracker{profiler: p, engine: engine}
}

// QueryTracker brackets database statements for one engine. Any database
// client adapter can drive it; the profiler never depends on a concrete
// client type.
type QueryTracker struct {
	profiler *Profiler
	engine   string
}

// BeforeQuery marks the start of a statement and returns the hook to invoke
// once it completes. The returned function is safe to call exactly once.
func (t *QueryTracker) BeforeQuery(ctx context.Context, queryText string) func(err error) {
	start := t.profiler.clock()
	return func(err error) {
		t.profiler.TrackQuery(ctx, queryText, t.profiler.clock().Sub(start), t.engine, err == nil)
	}
}

// Snapshot is the poll payload: totals plus the headline breakdowns, all
// derived from a consistent read of the stores.
type Snapshot struct {
	Stats      query.TotalStats    `json:"stats"`
	Methods    map[string]int64    `json:"methods"`
	Statuses   map[int]int64       `json:"statuses"`
	Slowest    []query.EndpointRow `json:"slowest_endpoints"`
	DB         query.DBStats       `json:"db"`
	TimeSeries []query.SeriesPoint `json:"time_series"`
}

// Snapshot assembles the dashboard poll payload for the given trailing
// window. A non-positive window means all retained data.
func (p *Profiler) Snapshot(window time.Duration) Snapshot {
	return Snapshot{
		Stats:      p.engine.TotalStats(window),
		Methods:    p.engine.RequestsByMethod(window),
		Statuses:   p.engine.StatusCodeDistribution(window),
		Slowest:    p.engine.SlowestEndpoints(5),
		DB:         p.engine.DBStats(),
		TimeSeries: p.engine.TimeSeries(time.Minute, 5*time.Minute),
	}
}

type scopeKey struct{}

// scope carries the endpoint identity of the in-flight request so database
// and external-call events attribute to their owning endpoint. When resolve
// is set, the key is computed at read time; the fasthttp adapter needs this
// because the matched route template only exists once routing has run.
type scope struct {
	key     event.EndpointKey
	resolve func() event.EndpointKey
}

func (s *scope) endpoint() event.EndpointKey {
	if s.resolve != nil {
		return s.resolve()
	}
	return s.key
}

// withScope returns ctx carrying the request scope.
func withScope(ctx context.Context, s *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func endpointFromContext(ctx context.Context) event.EndpointKey {
	if ctx == nil {
		return event.EndpointKey{}
	}
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s.endpoint()
	}
	return event.EndpointKey{}
}
