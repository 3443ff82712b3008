package profiler_test

import (
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/httpscope/httpscope/internal/event"
	"github.com/httpscope/httpscope/internal/profiler"
)

func serveFasthttp(h fasthttp.RequestHandler, method, uri string) {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h(&ctx)
}

func TestFasthttpMiddlewareWithRouter(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	r := router.New()
	r.SaveMatchedRoutePath = true
	r.GET("/orders/{id}", func(ctx *fasthttp.RequestCtx) {
		p.TrackQuery(ctx, "SELECT * FROM orders WHERE id = ?", 2*time.Millisecond, "orders-db", true)
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	h := p.FasthttpMiddleware(r.Handler)

	serveFasthttp(h, fasthttp.MethodGet, "http://test/orders/41")
	serveFasthttp(h, fasthttp.MethodGet, "http://test/orders/42")

	key := event.EndpointKey{Method: "GET", Path: "/orders/{id}"}
	v, ok := p.Pipeline().Endpoints().Get(key)
	if !ok {
		t.Fatalf("expected aggregate bucket for %s", key)
	}
	if v.Count != 2 {
		t.Errorf("expected both ids to collapse into one endpoint, got count %d", v.Count)
	}

	queries := p.Pipeline().Queries().Snapshot(0, false)
	if len(queries) != 2 {
		t.Fatalf("expected 2 query events, got %d", len(queries))
	}
	if queries[0].Endpoint != key {
		t.Errorf("expected query owned by %s, got %s", key, queries[0].Endpoint)
	}
}

func TestFasthttpQueryAttributionNonNumericSegment(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	r := router.New()
	r.SaveMatchedRoutePath = true
	r.GET("/users/{name}", func(ctx *fasthttp.RequestCtx) {
		p.TrackQuery(ctx, "SELECT * FROM users WHERE name = ?", time.Millisecond, "users-db", true)
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	h := p.FasthttpMiddleware(r.Handler)

	// "alice" is not collapsed by the heuristic, so only the matched route
	// template can put the query in the request's bucket.
	serveFasthttp(h, fasthttp.MethodGet, "http://test/users/alice")

	key := event.EndpointKey{Method: "GET", Path: "/users/{name}"}
	if _, ok := p.Pipeline().Endpoints().Get(key); !ok {
		t.Fatalf("expected aggregate bucket for %s", key)
	}

	queries := p.Pipeline().Queries().Snapshot(0, false)
	if len(queries) != 1 {
		t.Fatalf("expected 1 query event, got %d", len(queries))
	}
	if queries[0].Endpoint != key {
		t.Errorf("expected query owned by %s, got %s", key, queries[0].Endpoint)
	}
}

func TestFasthttpMiddlewareCapturesStatus(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	h := p.FasthttpMiddleware(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	})
	serveFasthttp(h, fasthttp.MethodPost, "http://test/throttle")

	events := p.Pipeline().Requests().Snapshot(0, false)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].StatusCode != fasthttp.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", events[0].StatusCode)
	}
	if events[0].Method != "POST" || events[0].Path != "/throttle" {
		t.Errorf("unexpected event identity: %s %s", events[0].Method, events[0].Path)
	}
}

func TestFasthttpMiddlewareRecordsPanics(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	h := p.FasthttpMiddleware(func(ctx *fasthttp.RequestCtx) {
		panic("kaboom")
	})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		serveFasthttp(h, fasthttp.MethodGet, "http://test/boom")
	}()

	events := p.Pipeline().Requests().Snapshot(0, false)
	if len(events) != 1 {
		t.Fatalf("expected the panicking request recorded, got %d events", len(events))
	}
	if events[0].StatusCode != fasthttp.StatusInternalServerError {
		t.Errorf("expected 500, got %d", events[0].StatusCode)
	}
}
