package config

import (
	"fmt"
	"strings"
	"time"
)

// TracingProtocol selects the OTLP transport for span export.
type TracingProtocol string

const (
	TracingProtocolGRPC TracingProtocol = "grpc"
	TracingProtocolHTTP TracingProtocol = "http"
)

type Config struct {
	Listen          string          `mapstructure:"listen" yaml:"listen"`
	DashboardPrefix string          `mapstructure:"dashboard_prefix" yaml:"dashboard_prefix"`
	RequestCapacity int             `mapstructure:"request_capacity" yaml:"request_capacity"`
	QueryCapacity   int             `mapstructure:"query_capacity" yaml:"query_capacity"`
	ExcludePaths    []string        `mapstructure:"exclude_paths" yaml:"exclude_paths"`
	PageSize        int             `mapstructure:"page_size" yaml:"page_size"`
	MaxPageSize     int             `mapstructure:"max_page_size" yaml:"max_page_size"`
	Windows         []time.Duration `mapstructure:"windows" yaml:"windows"`
	Rate            int             `mapstructure:"rate" yaml:"rate"`
	Duration        time.Duration   `mapstructure:"duration" yaml:"duration"`
	TUI             bool            `mapstructure:"tui" yaml:"tui"`
	JSONOutput      bool            `mapstructure:"json_output" yaml:"json_output"`
	Tracing         TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	ConfigFile      string          `mapstructure:"-" yaml:"-"`
}

type TracingConfig struct {
	Enabled     bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string          `mapstructure:"endpoint" yaml:"endpoint"`
	Protocol    TracingProtocol `mapstructure:"protocol" yaml:"protocol"`
	Insecure    bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64         `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		DashboardPrefix: "/profiler",
		RequestCapacity: 1000,
		QueryCapacity:   500,
		ExcludePaths:    []string{"/health"},
		PageSize:        10,
		MaxPageSize:     500,
		Windows:         []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour},
		Rate:            20,
		Tracing: TracingConfig{
			Protocol:    TracingProtocolGRPC,
			SampleRatio: 1.0,
		},
	}
}

// ValidationError aggregates all configuration problems found in one pass so
// the user can fix them together.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Listen) == "" {
		issues = append(issues, "listen address is required")
	}
	if !strings.HasPrefix(c.DashboardPrefix, "/") {
		issues = append(issues, "dashboard_prefix must start with '/'")
	}
	if c.RequestCapacity < 1 {
		issues = append(issues, "request_capacity must be >= 1")
	}
	if c.QueryCapacity < 1 {
		issues = append(issues, "query_capacity must be >= 1")
	}
	if c.PageSize < 1 {
		issues = append(issues, "page_size must be >= 1")
	}
	if c.MaxPageSize < c.PageSize {
		issues = append(issues, "max_page_size must be >= page_size")
	}
	for _, w := range c.Windows {
		if w <= 0 {
			issues = append(issues, "windows must all be positive durations")
			break
		}
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.TUI && c.JSONOutput {
		issues = append(issues, "tui and json-output are mutually exclusive")
	}

	if c.Tracing.Enabled {
		if strings.TrimSpace(c.Tracing.Endpoint) == "" {
			issues = append(issues, "tracing.endpoint is required when tracing is enabled")
		}
		switch c.Tracing.Protocol {
		case TracingProtocolGRPC, TracingProtocolHTTP:
		default:
			issues = append(issues, fmt.Sprintf("tracing.protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			issues = append(issues, "tracing.sample_ratio must be between 0 and 1")
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
