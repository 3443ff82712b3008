package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen :8080, got %q", cfg.Listen)
	}
	if cfg.RequestCapacity != 1000 || cfg.QueryCapacity != 500 {
		t.Errorf("unexpected default capacities: %d/%d", cfg.RequestCapacity, cfg.QueryCapacity)
	}
	if cfg.DashboardPrefix != "/profiler" {
		t.Errorf("expected default prefix /profiler, got %q", cfg.DashboardPrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpscope.yaml")
	content := `
listen: ":9090"
request_capacity: 200
exclude_paths:
  - /health
  - /metrics
rate: 5
duration: 30s
windows: [1m, 5m]
tracing:
  enabled: true
  endpoint: localhost:4317
  sample_ratio: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("expected listen :9090, got %q", cfg.Listen)
	}
	if cfg.RequestCapacity != 200 {
		t.Errorf("expected request_capacity 200, got %d", cfg.RequestCapacity)
	}
	if len(cfg.ExcludePaths) != 2 || cfg.ExcludePaths[0] != "/health" {
		t.Errorf("unexpected exclude_paths: %v", cfg.ExcludePaths)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("expected duration 30s, got %s", cfg.Duration)
	}
	if len(cfg.Windows) != 2 || cfg.Windows[0] != time.Minute {
		t.Errorf("unexpected windows: %v", cfg.Windows)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRatio != 0.5 {
		t.Errorf("unexpected tracing config: %+v", cfg.Tracing)
	}
	// File values left unset keep their defaults.
	if cfg.QueryCapacity != 500 {
		t.Errorf("expected default query_capacity 500, got %d", cfg.QueryCapacity)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpscope.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\nrate: 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().Load([]string{"--config", path, "--listen", ":7070", "--tui"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("expected flag to win over file, got %q", cfg.Listen)
	}
	if cfg.Rate != 5 {
		t.Errorf("expected file rate 5 to survive, got %d", cfg.Rate)
	}
	if !cfg.TUI {
		t.Error("expected --tui to set TUI")
	}
}

func TestHelpRequested(t *testing.T) {
	_, err := NewLoader().Load([]string{"--help"})
	if !errors.Is(err, ErrHelpRequested) {
		t.Fatalf("expected ErrHelpRequested, got %v", err)
	}
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen address"},
		{"bad prefix", func(c *Config) { c.DashboardPrefix = "profiler" }, "dashboard_prefix"},
		{"zero capacity", func(c *Config) { c.RequestCapacity = 0 }, "request_capacity"},
		{"page size", func(c *Config) { c.PageSize = 0 }, "page_size"},
		{"max below default", func(c *Config) { c.MaxPageSize = 1 }, "max_page_size"},
		{"negative rate", func(c *Config) { c.Rate = -1 }, "rate"},
		{"tui vs json", func(c *Config) { c.TUI = true; c.JSONOutput = true }, "mutually exclusive"},
		{"tracing endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.endpoint"},
		{"tracing ratio", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = "localhost:4317"
			c.Tracing.SampleRatio = 2
		}, "sample_ratio"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected issue mentioning %q, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestValidateAccumulatesIssues(t *testing.T) {
	cfg := Default()
	cfg.Listen = ""
	cfg.RequestCapacity = 0
	cfg.Rate = -1

	err := cfg.Validate()
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Issues()) != 3 {
		t.Errorf("expected 3 issues, got %d: %v", len(verr.Issues()), verr.Issues())
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("write default: %v", err)
	}

	cfg, err := NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("load written default: %v", err)
	}
	want := Default()
	if cfg.Listen != want.Listen || cfg.RequestCapacity != want.RequestCapacity || cfg.PageSize != want.PageSize {
		t.Errorf("round-tripped config drifted: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("round-tripped config must validate, got %v", err)
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"all", 0, false},
		{"5m", 5 * time.Minute, false},
		{"1h", time.Hour, false},
		{"-5m", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseWindow(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseWindow(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseWindow(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseWindow(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
