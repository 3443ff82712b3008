package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/httpscope/httpscope/internal/profiler"
)

func seededProfiler(t *testing.T) *profiler.Profiler {
	t.Helper()
	prof, err := profiler.New(profiler.Options{})
	if err != nil {
		t.Fatalf("new profiler: %v", err)
	}
	prof.Pipeline().IngestRequest("GET", "/fast", "", 200, 5*time.Millisecond, "")
	prof.Pipeline().IngestRequest("GET", "/slow", "", 200, 150*time.Millisecond, "")
	prof.Pipeline().IngestRequest("POST", "/slow", "", 500, 90*time.Millisecond, "")
	prof.Pipeline().IngestQuery(prof.Pipeline().EndpointFor("GET", "/slow", ""), "SELECT 1", 8*time.Millisecond, "main", true)
	return prof
}

func TestPrintReport(t *testing.T) {
	r := Build(seededProfiler(t))

	var buf bytes.Buffer
	PrintReport(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"Total Requests:    3",
		"Unique Endpoints:  3",
		"Status Codes:",
		"500: 1",
		"Slowest Endpoints:",
		"GET /slow",
		"Total Queries:   1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\noutput:\n%s", want, out)
		}
	}
}

func TestPrintJSONReport(t *testing.T) {
	r := Build(seededProfiler(t))

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, r); err != nil {
		t.Fatalf("print json: %v", err)
	}

	body := buf.String()
	if got := gjson.Get(body, "stats.count").Int(); got != 3 {
		t.Errorf("expected stats.count 3, got %d", got)
	}
	if got := gjson.Get(body, "db.total_queries").Int(); got != 1 {
		t.Errorf("expected one query, got %d", got)
	}
	if got := gjson.Get(body, "slowest_endpoints.0.path").String(); got != "/slow" {
		t.Errorf("expected /slow first, got %s", got)
	}
}
