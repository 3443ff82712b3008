package profiler

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/httpscope/httpscope/internal/event"
)

// FasthttpMiddleware instruments a fasthttp request handler. When the handler
// is served through a fasthttp router configured with SaveMatchedRoutePath,
// the matched route template becomes the endpoint path; otherwise dynamic
// segments are collapsed heuristically. ctx implements context.Context, so
// TrackQuery and AddExternalCall called with it attribute to the request.
func (p *Profiler) FasthttpMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := p.clock()

		method := string(ctx.Method())
		path := string(ctx.Path())

		// The router stores the matched template on the ctx before the user
		// handler runs, so a lazy resolve attributes queries to the template
		// even when its dynamic segments are non-numeric.
		s := &scope{resolve: func() event.EndpointKey {
			return p.pipeline.EndpointFor(method, path, matchedRoute(ctx))
		}}
		ctx.SetUserValue(scopeKey{}, s)

		defer func() {
			d := p.clock().Sub(start)
			template := matchedRoute(ctx)
			status := ctx.Response.StatusCode()
			if rec := recover(); rec != nil {
				p.pipeline.IngestRequest(method, path, template, fasthttp.StatusInternalServerError, d, ctx.RemoteIP().String())
				panic(rec)
			}
			p.pipeline.IngestRequest(method, path, template, status, d, ctx.RemoteIP().String())
		}()

		next(ctx)
	}
}

func matchedRoute(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue(router.MatchedRoutePathParam).(string); ok {
		return v
	}
	return ""
}
