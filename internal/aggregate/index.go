// Package aggregate maintains per-key running statistics that survive ring
// eviction: counts, duration sums, min/max, a streaming percentile sketch and
// a status-code tally. Buckets are created lazily on first record and live for
// the process lifetime; key cardinality is expected to track route count, so
// keys are never removed.
package aggregate

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/puzpuzpuz/xsync/v4"
)

// Histogram tracking range: 1µs to 60s at 3 significant figures. Samples are
// clamped into this range before recording.
const (
	histMinUs      = 1
	histMaxUs      = 60_000_000
	histPrecision  = 3
	statusNone     = -1
	maxStatusCodes = 64 // tally stops growing past this many distinct codes
)

// Bucket accumulates statistics for one key. All updates happen under the
// bucket's own mutex, so writers to distinct keys never contend.
type Bucket struct {
	mu       sync.Mutex
	count    int64
	failures int64
	sum      time.Duration
	min      time.Duration
	max      time.Duration
	hist     *hdrhistogram.Histogram
	statuses map[int]int64
	lastSeen time.Time
}

func newBucket() *Bucket {
	return &Bucket{
		hist:     hdrhistogram.New(histMinUs, histMaxUs, histPrecision),
		statuses: make(map[int]int64),
	}
}

func (b *Bucket) record(d time.Duration, status int, success bool, now time.Time) {
	us := d.Microseconds()
	if us < histMinUs {
		us = histMinUs
	}
	if us > histMaxUs {
		us = histMaxUs
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 || d < b.min {
		b.min = d
	}
	if d > b.max {
		b.max = d
	}
	b.count++
	b.sum += d
	_ = b.hist.RecordValue(us)
	if status != statusNone {
		if _, ok := b.statuses[status]; ok || len(b.statuses) < maxStatusCodes {
			b.statuses[status]++
		}
	}
	if !success {
		b.failures++
	}
	b.lastSeen = now
}

// View is a read-only copy of one bucket's statistics.
type View struct {
	Count    int64
	Failures int64
	Sum      time.Duration
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	P50      time.Duration
	P90      time.Duration
	P95      time.Duration
	P99      time.Duration
	Statuses map[int]int64
	LastSeen time.Time
}

func (b *Bucket) view() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := View{
		Count:    b.count,
		Failures: b.failures,
		Sum:      b.sum,
		Min:      b.min,
		Max:      b.max,
		Statuses: make(map[int]int64, len(b.statuses)),
		LastSeen: b.lastSeen,
	}
	if b.count > 0 {
		v.Avg = time.Duration(int64(b.sum) / b.count)
	}
	if b.hist.TotalCount() > 0 {
		v.P50 = time.Duration(b.hist.ValueAtQuantile(50)) * time.Microsecond
		v.P90 = time.Duration(b.hist.ValueAtQuantile(90)) * time.Microsecond
		v.P95 = time.Duration(b.hist.ValueAtQuantile(95)) * time.Microsecond
		v.P99 = time.Duration(b.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	for code, n := range b.statuses {
		v.Statuses[code] = n
	}
	return v
}

// Index holds one bucket per key plus a global bucket covering every record.
// Bucket creation is exactly-once per key and race-safe.
type Index[K comparable] struct {
	global  *Bucket
	buckets *xsync.Map[K, *Bucket]
	clock   func() time.Time
}

// NewIndex creates an empty index.
func NewIndex[K comparable]() *Index[K] {
	return &Index[K]{
		global:  newBucket(),
		buckets: xsync.NewMap[K, *Bucket](),
		clock:   time.Now,
	}
}

func (ix *Index[K]) bucket(key K) *Bucket {
	if b, ok := ix.buckets.Load(key); ok {
		return b
	}
	actual, _ := ix.buckets.LoadOrStore(key, newBucket())
	return actual
}

// Record adds one sample under key. status < 0 means no status code applies
// (database records); the success flag feeds the failure counter.
func (ix *Index[K]) Record(key K, d time.Duration, status int, success bool) {
	now := ix.clock()
	ix.global.record(d, status, success, now)
	ix.bucket(key).record(d, status, success, now)
}

// Global returns a snapshot of the all-keys bucket.
func (ix *Index[K]) Global() View {
	return ix.global.view()
}

// Get returns a snapshot of one key's bucket.
func (ix *Index[K]) Get(key K) (View, bool) {
	b, ok := ix.buckets.Load(key)
	if !ok {
		return View{}, false
	}
	return b.view(), true
}

// Snapshot returns consistent per-bucket copies for all keys. Each bucket is
// copied under its own lock; recording on other keys is never blocked.
func (ix *Index[K]) Snapshot() map[K]View {
	out := make(map[K]View, ix.buckets.Size())
	ix.buckets.Range(func(key K, b *Bucket) bool {
		out[key] = b.view()
		return true
	})
	return out
}

// Len returns the number of distinct keys seen.
func (ix *Index[K]) Len() int {
	return ix.buckets.Size()
}
