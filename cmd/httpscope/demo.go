package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/httpscope/httpscope/internal/profiler"
)

// demoStore is the sample application's in-memory data, queried through the
// profiler's database hooks so the dashboard has query traffic to show.
type demoStore struct {
	mu    sync.RWMutex
	items map[int]demoItem
	next  int
}

type demoItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newDemoStore() *demoStore {
	s := &demoStore{items: make(map[int]demoItem), next: 1}
	for _, name := range []string{"anvil", "beacon", "crate", "drum", "easel"} {
		s.items[s.next] = demoItem{ID: s.next, Name: name}
		s.next++
	}
	return s
}

func (s *demoStore) list() []demoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]demoItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out
}

func (s *demoStore) get(id int) (demoItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

func (s *demoStore) add(name string) demoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := demoItem{ID: s.next, Name: name}
	s.items[s.next] = item
	s.next++
	return item
}

// demoAPI is the instrumented sample application: a handful of endpoints with
// distinct latency profiles, simulated database work and an outbound call.
type demoAPI struct {
	prof  *profiler.Profiler
	store *demoStore
}

func newDemoAPI(prof *profiler.Profiler) *demoAPI {
	return &demoAPI{prof: prof, store: newDemoStore()}
}

func (a *demoAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/fast", a.handleFast)
	mux.HandleFunc("GET /api/medium", a.handleMedium)
	mux.HandleFunc("GET /api/slow", a.handleSlow)
	mux.HandleFunc("GET /api/items", a.handleListItems)
	mux.HandleFunc("GET /api/items/{id}", a.handleGetItem)
	mux.HandleFunc("POST /api/items", a.handleCreateItem)
	mux.HandleFunc("GET /api/users", a.handleUsers)
	mux.HandleFunc("GET /api/external", a.handleExternal)
	mux.HandleFunc("GET /api/error", a.handleError)
	mux.HandleFunc("GET /health", a.handleHealth)
}

// simulateQuery sleeps for a jittered duration and records it as a database
// statement owned by the current request.
func (a *demoAPI) simulateQuery(r *http.Request, queryText, engine string, base time.Duration) {
	d := base + time.Duration(rand.Int63n(int64(base)))
	time.Sleep(d)
	a.prof.TrackQuery(r.Context(), queryText, d, engine, true)
}

func (a *demoAPI) handleFast(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"speed": "fast"})
}

func (a *demoAPI) handleMedium(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	writeJSON(w, http.StatusOK, map[string]string{"speed": "medium"})
}

func (a *demoAPI) handleSlow(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	a.simulateQuery(r, "SELECT pg_sleep(0.05)", "analytics", 30*time.Millisecond)
	writeJSON(w, http.StatusOK, map[string]string{"speed": "slow"})
}

func (a *demoAPI) handleListItems(w http.ResponseWriter, r *http.Request) {
	a.simulateQuery(r, "SELECT id, name FROM items", "main", 5*time.Millisecond)
	writeJSON(w, http.StatusOK, a.store.list())
}

func (a *demoAPI) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	a.simulateQuery(r, "SELECT id, name FROM items WHERE id = ?", "main", 3*time.Millisecond)
	item, ok := a.store.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *demoAPI) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		body.Name = fmt.Sprintf("item-%d", rand.Intn(1000))
	}
	a.simulateQuery(r, "INSERT INTO items (name) VALUES (?)", "main", 8*time.Millisecond)
	writeJSON(w, http.StatusCreated, a.store.add(body.Name))
}

func (a *demoAPI) handleUsers(w http.ResponseWriter, r *http.Request) {
	a.simulateQuery(r, "SELECT id, email FROM users ORDER BY id", "main", 10*time.Millisecond)
	a.simulateQuery(r, "SELECT user_id, role FROM roles", "main", 4*time.Millisecond)
	writeJSON(w, http.StatusOK, []map[string]string{
		{"email": "ada@example.test"},
		{"email": "brian@example.test"},
	})
}

// handleExternal simulates a call to a third-party API and records it.
func (a *demoAPI) handleExternal(w http.ResponseWriter, r *http.Request) {
	d := time.Duration(40+rand.Intn(80)) * time.Millisecond
	time.Sleep(d)
	a.prof.AddExternalCall(r.Context(), "https://api.partner.test/v1/quote", http.MethodGet, d)
	writeJSON(w, http.StatusOK, map[string]string{"quote": "42"})
}

func (a *demoAPI) handleError(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "simulated failure"})
}

func (a *demoAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
