package profiler

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// patternMatcher is the slice of *http.ServeMux the middleware needs to learn
// the matched route template before the handler runs.
type patternMatcher interface {
	Handler(*http.Request) (http.Handler, string)
}

// Middleware instruments next. Every completed request is recorded with its
// method, route template, status and duration, including requests whose
// handler panics (recorded as 500, then re-panicked for the server's own
// recovery). When next is an *http.ServeMux the matched pattern becomes the
// endpoint path; otherwise dynamic path segments are collapsed heuristically.
func (p *Profiler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := p.clock()

		template := ""
		if mux, ok := next.(patternMatcher); ok {
			_, pat := mux.Handler(r)
			template = stripPatternMethod(pat)
		}

		s := &scope{key: p.pipeline.EndpointFor(r.Method, r.URL.Path, template)}
		r = r.WithContext(withScope(r.Context(), s))

		sw := &statusWriter{ResponseWriter: w}
		defer func() {
			d := p.clock().Sub(start)
			if rec := recover(); rec != nil {
				p.pipeline.IngestRequest(r.Method, r.URL.Path, template, http.StatusInternalServerError, d, clientID(r))
				p.log.Error("handler panic",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				panic(rec)
			}
			p.pipeline.IngestRequest(r.Method, r.URL.Path, template, sw.Status(), d, clientID(r))
		}()

		next.ServeHTTP(sw, r)
	})
}

// stripPatternMethod drops the "METHOD " and "host" prefixes of an
// http.ServeMux pattern, leaving the path template.
func stripPatternMethod(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter records the response status; handlers that never call
// WriteHeader report 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Flush passes through so streaming handlers keep working when wrapped.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
