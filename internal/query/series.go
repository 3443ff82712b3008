package query

import (
	"time"

	"github.com/httpscope/httpscope/internal/event"
)

// SeriesPoint is one fixed-width bucket of the response-time trend. Empty
// buckets report Count 0 and AvgMs 0 so the chart keeps a contiguous x-axis.
type SeriesPoint struct {
	BucketStart time.Time `json:"bucket_start"`
	Count       int64     `json:"count"`
	AvgMs       float64   `json:"avg_ms"`
}

// TimeSeries partitions the trailing window into contiguous fixed-width
// buckets aligned to bucketWidth boundaries and averages request durations per
// bucket. Malformed parameters degrade: bucketWidth defaults to one minute,
// window to five, and a window smaller than one bucket is widened to it. The
// newest bucket is the current, still-filling one.
func (e *Engine) TimeSeries(bucketWidth, window time.Duration) []SeriesPoint {
	if bucketWidth <= 0 {
		bucketWidth = time.Minute
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if window < bucketWidth {
		window = bucketWidth
	}

	n := int(window / bucketWidth)
	latest := e.now().Truncate(bucketWidth)
	first := latest.Add(-time.Duration(n-1) * bucketWidth)

	points := make([]SeriesPoint, n)
	sums := make([]time.Duration, n)
	for i := range points {
		points[i].BucketStart = first.Add(time.Duration(i) * bucketWidth)
	}

	for _, ev := range e.requests.Snapshot(0, false) {
		if ev.Timestamp.Before(first) {
			continue
		}
		idx := int(ev.Timestamp.Sub(first) / bucketWidth)
		if idx < 0 || idx >= n {
			continue
		}
		points[idx].Count++
		sums[idx] += ev.Duration
	}

	for i := range points {
		if points[i].Count > 0 {
			points[i].AvgMs = event.Ms(sums[i] / time.Duration(points[i].Count))
		}
	}
	return points
}
