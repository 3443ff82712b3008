// Package dashboard serves the profiler's read-side as a JSON API plus a
// websocket stream of live stat snapshots. HTML and chart assets are the
// polling client's business; only the data surface lives here.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/httpscope/httpscope/internal/config"
	"github.com/httpscope/httpscope/internal/profiler"
	"github.com/httpscope/httpscope/internal/query"
)

// Options configure a dashboard Server. The zero value is usable.
type Options struct {
	Prefix            string          // URL prefix, default "/profiler"
	BroadcastInterval time.Duration   // websocket snapshot cadence, default 2s
	Windows           []time.Duration // selectable stat windows, default 5m/15m/1h
	Logger            *zap.Logger
}

func (o *Options) normalize() {
	if o.Prefix == "" {
		o.Prefix = "/profiler"
	}
	if o.BroadcastInterval <= 0 {
		o.BroadcastInterval = 2 * time.Second
	}
	if len(o.Windows) == 0 {
		o.Windows = config.Default().Windows
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Server exposes one profiler instance over HTTP.
type Server struct {
	prof     *profiler.Profiler
	engine   *query.Engine
	opts     Options
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer builds a Server around prof.
func NewServer(prof *profiler.Profiler, opts Options) *Server {
	opts.normalize()
	return &Server{
		prof:   prof,
		engine: prof.Engine(),
		opts:   opts,
		hub:    NewHub(),
		log:    opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is same-host tooling; no origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the API under the configured prefix.
func (s *Server) Register(mux *http.ServeMux) {
	p := s.opts.Prefix
	mux.HandleFunc("GET "+p+"/api/stats", s.handleStats)
	mux.HandleFunc("GET "+p+"/api/endpoints", s.handleEndpoints)
	mux.HandleFunc("GET "+p+"/api/requests", s.handleRequests)
	mux.HandleFunc("GET "+p+"/api/requests/{id}", s.handleRequestDetail)
	mux.HandleFunc("GET "+p+"/api/queries", s.handleQueries)
	mux.HandleFunc("GET "+p+"/api/timeseries", s.handleTimeSeries)
	mux.HandleFunc("GET "+p+"/api/windows", s.handleWindows)
	mux.HandleFunc("GET "+p+"/api/ws", s.handleWS)
}

// Run broadcasts stat snapshots to websocket subscribers until ctx is done,
// then shuts the hub down.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.BroadcastInterval)
	defer ticker.Stop()
	defer s.hub.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.prof.Snapshot(0))
			if err != nil {
				s.log.Error("marshal snapshot", zap.Error(err))
				continue
			}
			s.hub.Broadcast(payload)
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := s.window(r)
	s.writeJSON(w, http.StatusOK, s.prof.Snapshot(window))
}

// handleWindows lists the windows a client can pass as ?window= values,
// "all" first.
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	windows := []string{"all"}
	for _, d := range s.opts.Windows {
		windows = append(windows, d.String())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"windows": windows})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, total := s.engine.ListEndpoints(query.ListOptions{
		SortKey:   q.Get("sort"),
		Ascending: q.Get("order") == "asc",
		Search:    q.Get("search"),
		Page:      queryInt(q.Get("page")),
		PageSize:  queryInt(q.Get("page_size")),
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"endpoints":   rows,
		"total_count": total,
	})
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, total := s.engine.ListRequests(query.ListOptions{
		SortKey:   q.Get("sort"),
		Ascending: q.Get("order") == "asc",
		Search:    q.Get("search"),
		Page:      queryInt(q.Get("page")),
		PageSize:  queryInt(q.Get("page_size")),
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"requests":    rows,
		"total_count": total,
	})
}

func (s *Server) handleRequestDetail(w http.ResponseWriter, r *http.Request) {
	detail, ok := s.engine.RequestDetail(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"error": "request not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recent, total := s.engine.RecentQueries(queryInt(q.Get("page")), queryInt(q.Get("page_size")))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"db":          s.engine.DBStats(),
		"queries":     recent,
		"total_count": total,
		"slowest":     s.engine.SlowestQueries(5),
	})
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	bucket, err := config.ParseWindow(r.URL.Query().Get("bucket"))
	if err != nil {
		bucket = 0
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"series": s.engine.TimeSeries(bucket, s.window(r)),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	client := newWSClient(conn)
	s.hub.Register(client)
	s.log.Debug("websocket subscriber connected", zap.String("remote", r.RemoteAddr))

	// Drain control frames; any read error means the peer is gone.
	go func() {
		defer s.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// window reads the trailing-window choice from the request; malformed values
// degrade to all retained data.
func (s *Server) window(r *http.Request) time.Duration {
	window, err := config.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		s.log.Debug("bad window parameter", zap.Error(err))
		return 0
	}
	return window
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
