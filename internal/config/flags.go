package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "httpscope",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Server flags
	flags.StringP("listen", "l", ":8080", "Address the demo server and dashboard listen on")
	flags.String("dashboard-prefix", "/profiler", "URL prefix for the dashboard JSON API")

	// Profiler flags
	flags.Int("request-capacity", 1000, "How many recent requests to retain")
	flags.Int("query-capacity", 500, "How many recent database queries to retain")
	flags.StringSlice("exclude-path", nil, "Route template to exclude from profiling (repeatable)")
	flags.Int("page-size", 10, "Default dashboard page size")

	// Traffic generator flags
	flags.IntP("rate", "r", 20, "Demo traffic rate in requests per second (0 disables the generator)")
	flags.DurationP("duration", "d", 0, "How long to run before printing the summary (0 means until interrupted)")

	// Output flags
	flags.Bool("tui", false, "Show the live terminal stats view")
	flags.Bool("json-output", false, "Emit the final summary as JSON")
	flags.String("config", "", "Path to a YAML configuration file")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for span export (empty disables tracing)")
	flags.String("tracing-protocol", string(TracingProtocolGRPC), "OTLP transport: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Skip TLS for the OTLP connection")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}
