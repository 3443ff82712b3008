package query_test

import (
	"testing"
	"time"
)

func TestTimeSeriesContiguousBuckets(t *testing.T) {
	p, e := newEngine(t)

	// Events in three of the five trailing minute buckets. fixedNow is
	// 10:30:00, so the newest bucket starts at 10:30 and the oldest at 10:26.
	pushRequest(p, fixedNow.Add(-4*time.Minute+10*time.Second), "GET", "/a", 200, 10*time.Millisecond)
	pushRequest(p, fixedNow.Add(-4*time.Minute+20*time.Second), "GET", "/a", 200, 30*time.Millisecond)
	pushRequest(p, fixedNow.Add(-2*time.Minute+5*time.Second), "GET", "/a", 200, 40*time.Millisecond)
	pushRequest(p, fixedNow, "GET", "/a", 200, 100*time.Millisecond)

	points := e.TimeSeries(time.Minute, 5*time.Minute)
	if len(points) != 5 {
		t.Fatalf("expected exactly 5 buckets, got %d", len(points))
	}

	for i, pt := range points {
		want := fixedNow.Add(time.Duration(i-4) * time.Minute)
		if !pt.BucketStart.Equal(want) {
			t.Errorf("bucket %d: expected start %s, got %s", i, want, pt.BucketStart)
		}
	}

	if points[0].Count != 2 || points[0].AvgMs != 20 {
		t.Errorf("oldest bucket: expected count 2 avg 20ms, got count %d avg %.1f", points[0].Count, points[0].AvgMs)
	}
	if points[2].Count != 1 || points[2].AvgMs != 40 {
		t.Errorf("bucket 2: expected count 1 avg 40ms, got count %d avg %.1f", points[2].Count, points[2].AvgMs)
	}
	if points[4].Count != 1 || points[4].AvgMs != 100 {
		t.Errorf("newest bucket: expected count 1 avg 100ms, got count %d avg %.1f", points[4].Count, points[4].AvgMs)
	}

	// Empty buckets stay in the series with zero values.
	for _, i := range []int{1, 3} {
		if points[i].Count != 0 || points[i].AvgMs != 0 {
			t.Errorf("bucket %d: expected empty, got count %d avg %.1f", i, points[i].Count, points[i].AvgMs)
		}
	}
}

func TestTimeSeriesIgnoresEventsOutsideWindow(t *testing.T) {
	p, e := newEngine(t)
	pushRequest(p, fixedNow.Add(-time.Hour), "GET", "/old", 200, time.Second)
	pushRequest(p, fixedNow, "GET", "/new", 200, 10*time.Millisecond)

	points := e.TimeSeries(time.Minute, 5*time.Minute)
	var total int64
	for _, pt := range points {
		total += pt.Count
	}
	if total != 1 {
		t.Errorf("expected only the in-window event counted, got %d", total)
	}
}

func TestTimeSeriesDegradedParameters(t *testing.T) {
	p, e := newEngine(t)
	pushRequest(p, fixedNow, "GET", "/a", 200, 10*time.Millisecond)

	// Zero parameters fall back to one-minute buckets over five minutes.
	points := e.TimeSeries(0, 0)
	if len(points) != 5 {
		t.Errorf("expected 5 default buckets, got %d", len(points))
	}

	// A window narrower than one bucket is widened to a single bucket.
	points = e.TimeSeries(time.Minute, 10*time.Second)
	if len(points) != 1 {
		t.Errorf("expected a single bucket, got %d", len(points))
	}
}
