package aggregate_test

import (
	"sync"
	"testing"
	"time"

	"github.com/httpscope/httpscope/internal/aggregate"
	"github.com/httpscope/httpscope/internal/event"
)

func TestRecordBasicStats(t *testing.T) {
	ix := aggregate.NewIndex[event.EndpointKey]()
	key := event.EndpointKey{Method: "GET", Path: "/users/{id}"}

	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
	}
	for _, d := range durations {
		ix.Record(key, d, 200, true)
	}

	v, ok := ix.Get(key)
	if !ok {
		t.Fatal("expected bucket for key")
	}
	if v.Count != 3 {
		t.Errorf("expected count 3, got %d", v.Count)
	}
	if v.Min != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", v.Min)
	}
	if v.Max != 30*time.Millisecond {
		t.Errorf("expected max 30ms, got %s", v.Max)
	}
	if v.Avg != 20*time.Millisecond {
		t.Errorf("expected avg 20ms, got %s", v.Avg)
	}
	if v.Min > v.Avg || v.Avg > v.Max {
		t.Errorf("expected min <= avg <= max, got %s / %s / %s", v.Min, v.Avg, v.Max)
	}
	if v.Statuses[200] != 3 {
		t.Errorf("expected 3 samples with status 200, got %d", v.Statuses[200])
	}
}

func TestConcurrentRecordNoLostUpdates(t *testing.T) {
	ix := aggregate.NewIndex[event.EndpointKey]()
	key := event.EndpointKey{Method: "POST", Path: "/items"}

	const workers = 16
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ix.Record(key, time.Millisecond, 201, true)
			}
		}()
	}
	wg.Wait()

	v, ok := ix.Get(key)
	if !ok {
		t.Fatal("expected bucket for key")
	}
	// Count and sum are exact, not approximate.
	if v.Count != workers*perWorker {
		t.Errorf("expected count %d, got %d", workers*perWorker, v.Count)
	}
	if v.Sum != time.Duration(workers*perWorker)*time.Millisecond {
		t.Errorf("expected sum %s, got %s", time.Duration(workers*perWorker)*time.Millisecond, v.Sum)
	}
	if g := ix.Global(); g.Count != workers*perWorker {
		t.Errorf("expected global count %d, got %d", workers*perWorker, g.Count)
	}
}

func TestConcurrentDistinctKeys(t *testing.T) {
	ix := aggregate.NewIndex[string]()

	var wg sync.WaitGroup
	engines := []string{"postgres", "mysql", "sqlite", "redis"}
	for _, engine := range engines {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				ix.Record(name, 2*time.Millisecond, -1, i%10 != 0)
			}
		}(engine)
	}
	wg.Wait()

	if ix.Len() != len(engines) {
		t.Fatalf("expected %d keys, got %d", len(engines), ix.Len())
	}
	for _, engine := range engines {
		v, ok := ix.Get(engine)
		if !ok {
			t.Fatalf("missing bucket for %s", engine)
		}
		if v.Count != 250 {
			t.Errorf("%s: expected count 250, got %d", engine, v.Count)
		}
		if v.Failures != 25 {
			t.Errorf("%s: expected 25 failures, got %d", engine, v.Failures)
		}
	}
}

func TestPercentileSketchSanity(t *testing.T) {
	ix := aggregate.NewIndex[string]()

	// 1000 samples: 1ms..1000ms.
	for i := 1; i <= 1000; i++ {
		ix.Record("api", time.Duration(i)*time.Millisecond, 200, true)
	}

	v, _ := ix.Get("api")
	// The sketch holds ~0.1% error at 3 significant figures.
	if v.P50 < 495*time.Millisecond || v.P50 > 505*time.Millisecond {
		t.Errorf("expected P50 ~500ms, got %s", v.P50)
	}
	if v.P90 < 895*time.Millisecond || v.P90 > 905*time.Millisecond {
		t.Errorf("expected P90 ~900ms, got %s", v.P90)
	}
	if v.P95 < 945*time.Millisecond || v.P95 > 955*time.Millisecond {
		t.Errorf("expected P95 ~950ms, got %s", v.P95)
	}
	if v.Max != 1000*time.Millisecond {
		t.Errorf("expected max exactly 1000ms, got %s", v.Max)
	}
}

func TestSnapshotIsolatedFromWriters(t *testing.T) {
	ix := aggregate.NewIndex[string]()
	ix.Record("a", time.Millisecond, 200, true)

	snap := ix.Snapshot()
	snap["a"].Statuses[200] = 999

	v, _ := ix.Get("a")
	if v.Statuses[200] != 1 {
		t.Errorf("snapshot mutation leaked into index: got %d", v.Statuses[200])
	}
}

func TestIdempotentReads(t *testing.T) {
	ix := aggregate.NewIndex[string]()
	ix.Record("a", 5*time.Millisecond, 200, true)
	ix.Record("a", 15*time.Millisecond, 500, false)

	first, _ := ix.Get("a")
	second, _ := ix.Get("a")

	if first.Count != second.Count || first.Sum != second.Sum ||
		first.P90 != second.P90 || first.Failures != second.Failures {
		t.Errorf("reads without intervening records differ: %+v vs %+v", first, second)
	}
}
