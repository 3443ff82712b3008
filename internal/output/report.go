// Package output renders the end-of-run profiling summary.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/httpscope/httpscope/internal/profiler"
	"github.com/httpscope/httpscope/internal/query"
)

// Report is the end-of-run summary: overall totals, the slowest endpoints and
// the database breakdown.
type Report struct {
	Stats    query.TotalStats    `json:"stats"`
	Methods  map[string]int64    `json:"methods"`
	Statuses map[int]int64       `json:"statuses"`
	Slowest  []query.EndpointRow `json:"slowest_endpoints"`
	DB       query.DBStats       `json:"db"`
}

// Build assembles a Report over all retained data.
func Build(prof *profiler.Profiler) Report {
	engine := prof.Engine()
	return Report{
		Stats:    engine.TotalStats(0),
		Methods:  engine.RequestsByMethod(0),
		Statuses: engine.StatusCodeDistribution(0),
		Slowest:  engine.SlowestEndpoints(5),
		DB:       engine.DBStats(),
	}
}

// PrintReport outputs a human-readable summary.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintln(w, "\n--- Profiling Summary ---")
	fmt.Fprintf(w, "Total Requests:    %d\n", r.Stats.Count)
	fmt.Fprintf(w, "Unique Endpoints:  %d\n", r.Stats.UniqueEndpoints)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Mean:            %s\n", ms(r.Stats.AvgMs))
	fmt.Fprintf(w, "  P90:             %s\n", ms(r.Stats.P90Ms))
	fmt.Fprintf(w, "  P95:             %s\n", ms(r.Stats.P95Ms))
	fmt.Fprintf(w, "  Max:             %s\n", ms(r.Stats.MaxMs))

	if len(r.Methods) > 0 {
		fmt.Fprintln(w, "\nRequests by Method:")
		for _, m := range sortedKeys(r.Methods) {
			fmt.Fprintf(w, "  %-8s %d\n", m, r.Methods[m])
		}
	}

	if len(r.Statuses) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		codes := make([]int, 0, len(r.Statuses))
		for code := range r.Statuses {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, r.Statuses[code])
		}
	}

	if len(r.Slowest) > 0 {
		fmt.Fprintln(w, "\nSlowest Endpoints:")
		for _, row := range r.Slowest {
			fmt.Fprintf(w, "  - %s %s: avg=%s, max=%s, count=%d\n",
				row.Method, row.Path, ms(row.AvgMs), ms(row.MaxMs), row.Count)
		}
	}

	if r.DB.TotalQueries > 0 {
		fmt.Fprintln(w, "\nDatabase:")
		fmt.Fprintf(w, "  Total Queries:   %d\n", r.DB.TotalQueries)
		fmt.Fprintf(w, "  Failed:          %d\n", r.DB.Failures)
		fmt.Fprintf(w, "  Mean:            %s\n", ms(r.DB.AvgMs))
		fmt.Fprintf(w, "  Max:             %s\n", ms(r.DB.MaxMs))
		for _, eng := range r.DB.Engines {
			fmt.Fprintf(w, "  - %s: count=%d, failures=%d, avg=%s, p95=%s\n",
				eng.Engine, eng.Count, eng.Failures, ms(eng.AvgMs), ms(eng.P95Ms))
		}
	}
}

// PrintJSONReport outputs a JSON-formatted summary.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond)).Round(time.Microsecond)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
