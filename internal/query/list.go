package query

import (
	"sort"
	"strings"
	"time"

	"github.com/httpscope/httpscope/internal/event"
)

// ListOptions control sorting, searching and pagination for list operations.
// Unknown sort keys and out-of-range pages degrade to defaults, never errors.
type ListOptions struct {
	SortKey   string
	Ascending bool
	Search    string // case-insensitive substring over method + path
	Page      int    // 1-indexed
	PageSize  int
}

// EndpointRow is one row of the endpoint table.
type EndpointRow struct {
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Count    int64         `json:"count"`
	Avg      time.Duration `json:"-"`
	Min      time.Duration `json:"-"`
	Max      time.Duration `json:"-"`
	AvgMs    float64       `json:"avg_ms"`
	MinMs    float64       `json:"min_ms"`
	MaxMs    float64       `json:"max_ms"`
	P90Ms    float64       `json:"p90_ms"`
	P95Ms    float64       `json:"p95_ms"`
	Statuses map[int]int64 `json:"statuses"`
}

func (e *Engine) endpointRows() []EndpointRow {
	snap := e.endpoints.Snapshot()
	rows := make([]EndpointRow, 0, len(snap))
	for key, v := range snap {
		rows = append(rows, EndpointRow{
			Method:   key.Method,
			Path:     key.Path,
			Count:    v.Count,
			Avg:      v.Avg,
			Min:      v.Min,
			Max:      v.Max,
			AvgMs:    event.Ms(v.Avg),
			MinMs:    event.Ms(v.Min),
			MaxMs:    event.Ms(v.Max),
			P90Ms:    event.Ms(v.P90),
			P95Ms:    event.Ms(v.P95),
			Statuses: v.Statuses,
		})
	}
	return rows
}

// SlowestEndpoints returns up to limit endpoints ordered by descending
// average duration, ties broken by higher count.
func (e *Engine) SlowestEndpoints(limit int) []EndpointRow {
	rows := e.endpointRows()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Avg == rows[j].Avg {
			if rows[i].Count == rows[j].Count {
				return endpointLabel(rows[i]) < endpointLabel(rows[j])
			}
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Avg > rows[j].Avg
	})
	if limit <= 0 {
		limit = 5
	}
	if limit > len(rows) {
		limit = len(rows)
	}
	return rows[:limit]
}

// ListEndpoints returns one page of the endpoint table plus the total row
// count after search filtering. Sort keys: method, path, avg, max, min,
// count; anything else falls back to avg descending.
func (e *Engine) ListEndpoints(opts ListOptions) ([]EndpointRow, int) {
	rows := e.endpointRows()

	if search := strings.ToLower(strings.TrimSpace(opts.Search)); search != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if strings.Contains(strings.ToLower(endpointLabel(row)), search) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	less := endpointLess(opts.SortKey)
	sort.SliceStable(rows, func(i, j int) bool {
		if opts.Ascending {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})

	total := len(rows)
	lo, hi := e.pageBounds(total, opts.Page, opts.PageSize)
	return rows[lo:hi], total
}

func endpointLabel(r EndpointRow) string {
	return r.Method + " " + r.Path
}

// endpointLess returns the comparator for sortKey. Every key breaks ties on
// method+path so the order is total: the rows come from a map snapshot, and
// without a total order tied rows could land on different pages between two
// calls.
func endpointLess(sortKey string) func(a, b EndpointRow) bool {
	byLabel := func(a, b EndpointRow) bool {
		return endpointLabel(a) < endpointLabel(b)
	}
	switch sortKey {
	case "method":
		return byLabel
	case "path":
		return func(a, b EndpointRow) bool {
			if a.Path != b.Path {
				return a.Path < b.Path
			}
			return byLabel(a, b)
		}
	case "max":
		return func(a, b EndpointRow) bool {
			if a.Max != b.Max {
				return a.Max < b.Max
			}
			return byLabel(a, b)
		}
	case "min":
		return func(a, b EndpointRow) bool {
			if a.Min != b.Min {
				return a.Min < b.Min
			}
			return byLabel(a, b)
		}
	case "count":
		return func(a, b EndpointRow) bool {
			if a.Count != b.Count {
				return a.Count < b.Count
			}
			return byLabel(a, b)
		}
	default:
		return func(a, b EndpointRow) bool {
			if a.Avg != b.Avg {
				return a.Avg < b.Avg
			}
			return byLabel(a, b)
		}
	}
}

// ListRequests returns one page of retained request events plus the total
// count after search filtering. Default order is newest first. Sort keys:
// time, duration, method, path, status.
func (e *Engine) ListRequests(opts ListOptions) ([]event.RequestEvent, int) {
	all := e.requests.Snapshot(0, true)

	if search := strings.ToLower(strings.TrimSpace(opts.Search)); search != "" {
		filtered := all[:0]
		for _, ev := range all {
			if strings.Contains(strings.ToLower(ev.Method+" "+ev.Path), search) {
				filtered = append(filtered, ev)
			}
		}
		all = filtered
	}

	// The snapshot is already newest first; the default "time" descending
	// order needs no extra sort.
	sorted := opts.SortKey != "" && opts.SortKey != "time"
	if sorted || opts.Ascending {
		less := requestLess(opts.SortKey)
		sort.SliceStable(all, func(i, j int) bool {
			if opts.Ascending {
				return less(all[i], all[j])
			}
			return less(all[j], all[i])
		})
	}

	total := len(all)
	lo, hi := e.pageBounds(total, opts.Page, opts.PageSize)
	return all[lo:hi], total
}

func requestLess(sortKey string) func(a, b event.RequestEvent) bool {
	switch sortKey {
	case "duration":
		return func(a, b event.RequestEvent) bool { return a.Duration < b.Duration }
	case "method":
		return func(a, b event.RequestEvent) bool { return a.Method < b.Method }
	case "path":
		return func(a, b event.RequestEvent) bool { return a.Path < b.Path }
	case "status":
		return func(a, b event.RequestEvent) bool { return a.StatusCode < b.StatusCode }
	default:
		return func(a, b event.RequestEvent) bool { return a.Timestamp.Before(b.Timestamp) }
	}
}

// pageBounds converts a 1-indexed page into slice bounds. Out-of-range pages
// yield an empty slice; callers still report the correct total.
func (e *Engine) pageBounds(total, page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = e.opts.DefaultPageSize
	}
	if pageSize > e.opts.MaxPageSize {
		pageSize = e.opts.MaxPageSize
	}
	lo := (page - 1) * pageSize
	if lo >= total {
		return total, total
	}
	hi := lo + pageSize
	if hi > total {
		hi = total
	}
	return lo, hi
}
