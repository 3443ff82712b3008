// Package console renders a live terminal view of profiling stats, fed from
// the read-side query engine on a ticker.
package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/httpscope/httpscope/internal/query"
)

// Info holds the run parameters shown in the header.
type Info struct {
	Listen     string
	Rate       int
	Duration   time.Duration
	ConfigFile string
}

// Console is a live terminal view of one profiler instance.
type Console struct {
	engine       *query.Engine
	info         Info
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	latencyPara    *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	rpsGauge       *widgets.Gauge
	endpointList   *widgets.List
	statusList     *widgets.List
	dbPara         *widgets.Paragraph
	latencyHistory []float64
	startTime      time.Time
	lastCount      int64
	lastTick       time.Time
}

// New creates a Console. shutdownFunc runs when the user quits the view.
func New(engine *query.Engine, info Info, shutdownFunc func()) (*Console, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Console{
		engine:         engine,
		info:           info,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		lastTick:       time.Now(),
	}

	c.initWidgets()
	c.setupGrid()

	return c, nil
}

func (c *Console) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Avg Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	c.latencySparkle = widgets.NewSparklineGroup(sparkline)
	c.latencySparkle.Title = "Response Time"
	c.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	c.latencyPara = widgets.NewParagraph()
	c.latencyPara.Title = "Latency"
	c.latencyPara.Text = "Mean: 0ms\nP90: 0ms\nP95: 0ms\nMax: 0ms"
	c.latencyPara.BorderStyle.Fg = ui.ColorCyan

	c.rpsGauge = widgets.NewGauge()
	c.rpsGauge.Title = "Requests Per Second"
	c.rpsGauge.Percent = 0
	c.rpsGauge.BarColor = ui.ColorBlue
	c.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	c.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	c.endpointList = widgets.NewList()
	c.endpointList.Title = "Slowest Endpoints"
	c.endpointList.Rows = []string{"Awaiting data"}
	c.endpointList.TextStyle = ui.NewStyle(ui.ColorCyan)
	c.endpointList.BorderStyle.Fg = ui.ColorCyan

	c.statusList = widgets.NewList()
	c.statusList.Title = "Status Codes"
	c.statusList.Rows = []string{"No responses yet"}
	c.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	c.statusList.BorderStyle.Fg = ui.ColorCyan

	c.summaryPara = widgets.NewParagraph()
	c.summaryPara.Title = "Profiling"
	c.summaryPara.Text = "Initializing..."
	c.summaryPara.BorderStyle.Fg = ui.ColorCyan

	c.dbPara = widgets.NewParagraph()
	c.dbPara.Title = "Database"
	c.dbPara.Text = "No queries yet"
	c.dbPara.TextStyle = ui.NewStyle(ui.ColorGreen)
	c.dbPara.BorderStyle.Fg = ui.ColorCyan
}

func (c *Console) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	c.grid = ui.NewGrid()
	c.grid.SetRect(0, 0, termWidth, termHeight)

	c.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, c.summaryPara),
		),
		ui.NewRow(0.18,
			ui.NewCol(0.5, c.rpsGauge),
			ui.NewCol(0.5, c.dbPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, c.latencySparkle),
			ui.NewCol(0.35, c.latencyPara),
		),
		ui.NewRow(0.38,
			ui.NewCol(0.5, c.endpointList),
			ui.NewCol(0.5, c.statusList),
		),
	)
}

// Start begins the update loop.
func (c *Console) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop stops the view and restores the terminal.
func (c *Console) Stop() {
	c.cancel()
	c.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (c *Console) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	c.render()

	for {
		select {
		case <-c.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-c.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if c.shutdownFunc != nil {
					c.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				c.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				c.render()
			}
		case <-ticker.C:
			c.update()
			c.render()
		}
	}
}

func (c *Console) update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.engine.TotalStats(0)
	elapsed := time.Since(c.startTime)

	if stats.AvgMs > 0 {
		c.latencyHistory = append(c.latencyHistory, stats.AvgMs)
		if len(c.latencyHistory) > 100 {
			c.latencyHistory = c.latencyHistory[1:]
		}
		c.latencySparkle.Sparklines[0].Data = c.latencyHistory
		c.latencySparkle.Title = fmt.Sprintf(
			"Response Time | Mean: %.2fms | Max: %.2fms",
			stats.AvgMs,
			stats.MaxMs,
		)
	}

	now := time.Now()
	currentRPS := 0.0
	if dt := now.Sub(c.lastTick).Seconds(); dt > 0 {
		currentRPS = float64(stats.Count-c.lastCount) / dt
	}
	c.lastCount = stats.Count
	c.lastTick = now

	maxRPS := 100.0
	if currentRPS > maxRPS {
		maxRPS = currentRPS
	}
	rpsPercent := int((currentRPS / maxRPS) * 100)
	if rpsPercent > 100 {
		rpsPercent = 100
	}
	c.rpsGauge.Percent = rpsPercent
	c.rpsGauge.Label = fmt.Sprintf("%.1f RPS", currentRPS)

	c.summaryPara.Text = fmt.Sprintf(
		"Listening: %s | Rate: %d rps\nElapsed: %s | Requests: %d | Endpoints: %d",
		c.info.Listen,
		c.info.Rate,
		elapsed.Round(time.Second),
		stats.Count,
		stats.UniqueEndpoints,
	)

	c.latencyPara.Text = fmt.Sprintf(
		"Mean: %.2fms\nP90:  %.2fms\nP95:  %.2fms\nMax:  %.2fms",
		stats.AvgMs,
		stats.P90Ms,
		stats.P95Ms,
		stats.MaxMs,
	)

	c.endpointList.Rows = endpointRows(c.engine.SlowestEndpoints(8))
	c.statusList.Rows = statusRows(c.engine.StatusCodeDistribution(0))
	c.dbPara.Text = dbText(c.engine.DBStats())
}

func (c *Console) render() {
	c.mu.Lock()
	defer c.mu.Unlock()
	ui.Render(c.grid)
}
