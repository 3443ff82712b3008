package console

import (
	"fmt"
	"sort"

	"github.com/httpscope/httpscope/internal/query"
)

func endpointRows(rows []query.EndpointRow) []string {
	if len(rows) == 0 {
		return []string{"Awaiting data"}
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, fmt.Sprintf("%-6s %-30s avg=%.1fms max=%.1fms n=%d",
			row.Method, row.Path, row.AvgMs, row.MaxMs, row.Count))
	}
	return out
}

func statusRows(statuses map[int]int64) []string {
	if len(statuses) == 0 {
		return []string{"No responses yet"}
	}
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		out = append(out, fmt.Sprintf("%d: %d", code, statuses[code]))
	}
	return out
}

func dbText(db query.DBStats) string {
	if db.TotalQueries == 0 {
		return "No queries yet"
	}
	text := fmt.Sprintf("Queries: %d | Failed: %d\nMean: %.2fms | Max: %.2fms",
		db.TotalQueries, db.Failures, db.AvgMs, db.MaxMs)
	for _, eng := range db.Engines {
		text += fmt.Sprintf("\n%s: n=%d avg=%.2fms", eng.Engine, eng.Count, eng.AvgMs)
	}
	return text
}
