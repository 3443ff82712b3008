package main

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// weightedTarget is one demo endpoint with its share of the generated load.
type weightedTarget struct {
	method string
	path   string
	weight int
}

var demoTraffic = []weightedTarget{
	{http.MethodGet, "/api/fast", 40},
	{http.MethodGet, "/api/medium", 20},
	{http.MethodGet, "/api/slow", 8},
	{http.MethodGet, "/api/items", 12},
	{http.MethodGet, "/api/items/3", 8},
	{http.MethodPost, "/api/items", 4},
	{http.MethodGet, "/api/users", 4},
	{http.MethodGet, "/api/external", 2},
	{http.MethodGet, "/api/error", 2},
}

// trafficGenerator drives weighted continuous requests against the demo
// server so the dashboard has live data to show.
type trafficGenerator struct {
	baseURL string
	limiter *rate.Limiter
	client  *http.Client
	targets []weightedTarget
	total   int
	log     *zap.Logger
}

func newTrafficGenerator(baseURL string, rps int, log *zap.Logger) *trafficGenerator {
	total := 0
	for _, t := range demoTraffic {
		total += t.weight
	}
	return &trafficGenerator{
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		client:  &http.Client{Timeout: 5 * time.Second},
		targets: demoTraffic,
		total:   total,
		log:     log,
	}
}

// run issues requests until ctx is done. Each request waits on the limiter so
// the configured rate holds steadily.
func (g *trafficGenerator) run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return
		}
		target := g.pick()
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.hit(ctx, target)
		}()
	}
}

func (g *trafficGenerator) pick() weightedTarget {
	n := rand.Intn(g.total)
	for _, t := range g.targets {
		if n < t.weight {
			return t
		}
		n -= t.weight
	}
	return g.targets[0]
}

func (g *trafficGenerator) hit(ctx context.Context, target weightedTarget) {
	req, err := http.NewRequestWithContext(ctx, target.method, g.baseURL+target.path, nil)
	if err != nil {
		g.log.Warn("build request", zap.Error(err))
		return
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			g.log.Warn("demo request failed", zap.String("path", target.path), zap.Error(err))
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
