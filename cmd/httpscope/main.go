package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.opentelemetry.io/otel/trace"

	"github.com/httpscope/httpscope/internal/config"
	"github.com/httpscope/httpscope/internal/console"
	"github.com/httpscope/httpscope/internal/dashboard"
	"github.com/httpscope/httpscope/internal/output"
	"github.com/httpscope/httpscope/internal/profiler"
	"github.com/httpscope/httpscope/internal/promexport"
	"github.com/httpscope/httpscope/internal/tracing"
)

const shutdownGrace = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	prof, err := profiler.New(profiler.Options{
		RequestCapacity: cfg.RequestCapacity,
		QueryCapacity:   cfg.QueryCapacity,
		ExcludePaths:    cfg.ExcludePaths,
		PageSize:        cfg.PageSize,
		MaxPageSize:     cfg.MaxPageSize,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	appMux := http.NewServeMux()
	newDemoAPI(prof).register(appMux)

	var appHandler http.Handler = prof.Middleware(appMux)
	if provider.Enabled() {
		appHandler = withTracing(provider.Tracer(), appMux, appHandler)
	}

	rootMux := http.NewServeMux()
	dashSrv := dashboard.NewServer(prof, dashboard.Options{
		Prefix:  cfg.DashboardPrefix,
		Windows: cfg.Windows,
		Logger:  logger,
	})
	dashSrv.Register(rootMux)

	exporter, err := promexport.New(prof)
	if err != nil {
		return err
	}
	rootMux.Handle("GET "+cfg.DashboardPrefix+"/metrics", exporter.Handler())
	rootMux.Handle("/", appHandler)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	srv := &http.Server{Handler: rootMux}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	go dashSrv.Run(ctx)

	logger.Info("profiler demo running",
		zap.String("listen", ln.Addr().String()),
		zap.String("dashboard", cfg.DashboardPrefix+"/api/stats"),
		zap.Int("rate", cfg.Rate))

	if cfg.Rate > 0 {
		gen := newTrafficGenerator("http://"+ln.Addr().String(), cfg.Rate, logger)
		go gen.run(ctx)
	}

	var tui *console.Console
	if cfg.TUI {
		tui, err = console.New(prof.Engine(), console.Info{
			Listen:     ln.Addr().String(),
			Rate:       cfg.Rate,
			Duration:   cfg.Duration,
			ConfigFile: cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		tui.Start()
	}

	if cfg.Duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Duration):
			cancel()
		case err := <-serveErr:
			return err
		}
	} else {
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			return err
		}
	}

	if tui != nil {
		tui.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	report := output.Build(prof)
	if cfg.JSONOutput {
		return output.PrintJSONReport(os.Stdout, report)
	}
	output.PrintReport(os.Stdout, report)
	return nil
}

// newLogger builds the CLI logger; the TUI owns the terminal, so logging is
// silenced while it runs.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.TUI {
		return zap.NewNop(), nil
	}
	return zap.NewProduction()
}

// withTracing exports one server span per profiled request, named by the
// matched route template.
func withTracing(tracer trace.Tracer, mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if i := strings.IndexByte(pattern, ' '); i >= 0 {
			pattern = pattern[i+1:]
		}
		ctx, span := tracing.StartRequestSpan(r.Context(), tracer, r.Method, pattern)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		tracing.EndRequestSpan(span, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
