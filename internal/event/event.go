// Package event defines the immutable value records produced by the
// instrumentation hooks and consumed by the stores and the query engine.
package event

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EndpointKey identifies one aggregation bucket: an HTTP method paired with a
// normalized route template (path parameters collapsed, never a raw URL).
type EndpointKey struct {
	Method string
	Path   string
}

// Zero reports whether the key is unset, e.g. a query that ran outside of any
// request.
func (k EndpointKey) Zero() bool {
	return k.Method == "" && k.Path == ""
}

func (k EndpointKey) String() string {
	if k.Zero() {
		return ""
	}
	return k.Method + " " + k.Path
}

// RequestEvent records one completed HTTP request. Timestamp carries both the
// wall clock and Go's monotonic reading; Duration is the full handler elapsed
// time. Events are immutable once created.
type RequestEvent struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	ClientID   string        `json:"client_id,omitempty"`
}

// Key returns the endpoint key this request aggregates under.
func (e RequestEvent) Key() EndpointKey {
	return EndpointKey{Method: e.Method, Path: e.Path}
}

// QueryEvent records one completed database statement. Endpoint is the key of
// the request that triggered the query, or the zero key if the query ran
// outside a request. Immutable.
type QueryEvent struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Endpoint   EndpointKey   `json:"endpoint"`
	Query      string        `json:"query"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Engine     string        `json:"engine"`
	Success    bool          `json:"success"`
}

// ExternalCallEvent records one outbound call (HTTP API, cache, queue) made
// while serving a request. Immutable.
type ExternalCallEvent struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Endpoint   EndpointKey   `json:"endpoint"`
	URL        string        `json:"url"`
	Method     string        `json:"method"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
}

// NewID returns a lexically sortable unique event ID.
func NewID() string {
	return ulid.Make().String()
}

// Ms converts a duration to fractional milliseconds for JSON payloads.
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
