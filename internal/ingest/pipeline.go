// Package ingest is the single write-side entry point: it validates and
// normalizes instrumentation events, pushes them into the bounded ring stores
// and updates the aggregate indexes. Ingestion never returns an error to the
// instrumented path; malformed input is clamped or defaulted instead.
package ingest

import (
	"strings"
	"time"

	"github.com/httpscope/httpscope/internal/aggregate"
	"github.com/httpscope/httpscope/internal/event"
	"github.com/httpscope/httpscope/internal/ring"
)

// Query text beyond this many bytes is truncated before storage so a single
// pathological statement cannot dominate ring memory.
const maxQueryTextLen = 4096

const statusNone = -1

// Options configure a Pipeline.
type Options struct {
	RequestCapacity  int      // request ring size (default 1000)
	QueryCapacity    int      // query ring size (default 500)
	ExternalCapacity int      // external-call ring size (default QueryCapacity)
	ExcludePaths     []string // normalized route templates to drop entirely
}

func (o *Options) normalize() {
	if o.RequestCapacity <= 0 {
		o.RequestCapacity = 1000
	}
	if o.QueryCapacity <= 0 {
		o.QueryCapacity = 500
	}
	if o.ExternalCapacity <= 0 {
		o.ExternalCapacity = o.QueryCapacity
	}
}

// Pipeline owns the write path. Safe for concurrent use from any number of
// request-handling goroutines.
type Pipeline struct {
	requests *ring.Ring[event.RequestEvent]
	queries  *ring.Ring[event.QueryEvent]
	external *ring.Ring[event.ExternalCallEvent]

	endpoints *aggregate.Index[event.EndpointKey]
	engines   *aggregate.Index[string]

	exclude map[string]struct{}
	clock   func() time.Time
}

// New creates a Pipeline with freshly allocated stores. Capacity errors fail
// fast here, at construction, never during ingestion.
func New(opts Options) (*Pipeline, error) {
	opts.normalize()

	requests, err := ring.New[event.RequestEvent](opts.RequestCapacity)
	if err != nil {
		return nil, err
	}
	queries, err := ring.New[event.QueryEvent](opts.QueryCapacity)
	if err != nil {
		return nil, err
	}
	external, err := ring.New[event.ExternalCallEvent](opts.ExternalCapacity)
	if err != nil {
		return nil, err
	}

	exclude := make(map[string]struct{}, len(opts.ExcludePaths))
	for _, p := range opts.ExcludePaths {
		if cleaned := cleanPath(p); cleaned != "" {
			exclude[cleaned] = struct{}{}
		}
	}

	return &Pipeline{
		requests:  requests,
		queries:   queries,
		external:  external,
		endpoints: aggregate.NewIndex[event.EndpointKey](),
		engines:   aggregate.NewIndex[string](),
		exclude:   exclude,
		clock:     time.Now,
	}, nil
}

// Requests exposes the request ring to the read side.
func (p *Pipeline) Requests() *ring.Ring[event.RequestEvent] { return p.requests }

// Queries exposes the query ring to the read side.
func (p *Pipeline) Queries() *ring.Ring[event.QueryEvent] { return p.queries }

// External exposes the external-call ring to the read side.
func (p *Pipeline) External() *ring.Ring[event.ExternalCallEvent] { return p.external }

// Endpoints exposes the per-endpoint aggregate index to the read side.
func (p *Pipeline) Endpoints() *aggregate.Index[event.EndpointKey] { return p.endpoints }

// Engines exposes the per-database aggregate index to the read side.
func (p *Pipeline) Engines() *aggregate.Index[string] { return p.engines }

// Excluded reports whether a normalized path is configured to be dropped.
func (p *Pipeline) Excluded(path string) bool {
	_, ok := p.exclude[path]
	return ok
}

// EndpointFor resolves the aggregation key a request would record under, or
// the zero key when its path is excluded. Middleware uses it to attribute
// in-flight database and external-call events before the request completes.
func (p *Pipeline) EndpointFor(method, rawPath, routeTemplate string) event.EndpointKey {
	path := NormalizePath(rawPath, routeTemplate)
	if p.Excluded(path) {
		return event.EndpointKey{}
	}
	return event.EndpointKey{Method: normalizeMethod(method), Path: path}
}

// IngestRequest records one completed HTTP request. routeTemplate is the
// matched route pattern from the hosting framework, empty when unknown.
// Requests on excluded paths are dropped before any storage. Returns the
// endpoint key the event aggregated under, or the zero key when dropped.
func (p *Pipeline) IngestRequest(method, rawPath, routeTemplate string, status int, d time.Duration, clientID string) event.EndpointKey {
	path := NormalizePath(rawPath, routeTemplate)
	if p.Excluded(path) {
		return event.EndpointKey{}
	}

	method = normalizeMethod(method)
	d = clampDuration(d)
	status = clampStatus(status)

	key := event.EndpointKey{Method: method, Path: path}
	ev := event.RequestEvent{
		ID:         event.NewID(),
		Timestamp:  p.clock(),
		Method:     method,
		Path:       path,
		StatusCode: status,
		Duration:   d,
		DurationMs: event.Ms(d),
		ClientID:   clientID,
	}

	p.requests.Push(ev)
	p.endpoints.Record(key, d, status, status < 500)
	return key
}

// IngestQuery records one completed database statement. endpoint is the key
// of the owning request, zero when the query ran outside a request.
func (p *Pipeline) IngestQuery(endpoint event.EndpointKey, queryText string, d time.Duration, engine string, success bool) {
	d = clampDuration(d)
	engine = normalizeEngine(engine)

	ev := event.QueryEvent{
		ID:         event.NewID(),
		Timestamp:  p.clock(),
		Endpoint:   endpoint,
		Query:      truncateQuery(queryText),
		Duration:   d,
		DurationMs: event.Ms(d),
		Engine:     engine,
		Success:    success,
	}

	p.queries.Push(ev)
	p.engines.Record(engine, d, statusNone, success)
}

// IngestExternal records one completed outbound call made while serving a
// request.
func (p *Pipeline) IngestExternal(endpoint event.EndpointKey, url, method string, d time.Duration) {
	d = clampDuration(d)
	if url == "" {
		url = "unknown"
	}

	p.external.Push(event.ExternalCallEvent{
		ID:         event.NewID(),
		Timestamp:  p.clock(),
		Endpoint:   endpoint,
		URL:        url,
		Method:     normalizeMethod(method),
		Duration:   d,
		DurationMs: event.Ms(d),
	})
}

// Negative durations come from clock skew; clamp to zero rather than surface
// an error into request handling.
func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func clampStatus(status int) int {
	if status < 100 || status > 599 {
		return 0
	}
	return status
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return "GET"
	}
	return method
}

func normalizeEngine(engine string) string {
	engine = strings.TrimSpace(engine)
	if engine == "" {
		return "default"
	}
	return engine
}

func truncateQuery(q string) string {
	q = strings.TrimSpace(q)
	if len(q) > maxQueryTextLen {
		return q[:maxQueryTextLen]
	}
	return q
}
