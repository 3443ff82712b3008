package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional config file to produce a
// Config. File values override defaults; flag values override both.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	cfg := Default()

	configPath := flagSet.Lookup("config").Value.String()
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := cfgViper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Listen = strings.TrimSpace(cfg.Listen)
	cfg.DashboardPrefix = strings.TrimRight(strings.TrimSpace(cfg.DashboardPrefix), "/")
	if cfg.DashboardPrefix == "" {
		cfg.DashboardPrefix = "/profiler"
	}

	return cfg, nil
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("listen") {
		val, err := fs.GetString("listen")
		if err != nil {
			return err
		}
		cfg.Listen = val
	}
	if fs.Changed("dashboard-prefix") {
		val, err := fs.GetString("dashboard-prefix")
		if err != nil {
			return err
		}
		cfg.DashboardPrefix = val
	}
	if fs.Changed("request-capacity") {
		val, err := fs.GetInt("request-capacity")
		if err != nil {
			return err
		}
		cfg.RequestCapacity = val
	}
	if fs.Changed("query-capacity") {
		val, err := fs.GetInt("query-capacity")
		if err != nil {
			return err
		}
		cfg.QueryCapacity = val
	}
	if fs.Changed("exclude-path") {
		val, err := fs.GetStringSlice("exclude-path")
		if err != nil {
			return err
		}
		cfg.ExcludePaths = val
	}
	if fs.Changed("page-size") {
		val, err := fs.GetInt("page-size")
		if err != nil {
			return err
		}
		cfg.PageSize = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("tui") {
		val, err := fs.GetBool("tui")
		if err != nil {
			return err
		}
		cfg.TUI = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = val
		cfg.Tracing.Enabled = val != ""
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = TracingProtocol(val)
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	return nil
}

// WriteDefault writes the default configuration to path as YAML, a starting
// point for a config file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ParseWindow converts a dashboard window choice such as "5m" or "all" into a
// trailing duration; zero means all retained data.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse window %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse window %q: negative duration", s)
	}
	return d, nil
}
