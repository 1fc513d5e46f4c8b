// Package commands implements CLI command handlers for gitgraft.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/gitgraft/pkg/config"
	"github.com/Sumatoshi-tech/gitgraft/pkg/observability"
	"github.com/Sumatoshi-tech/gitgraft/pkg/version"
)

// Persistent flag names and the config keys they override.
var boundFlags = []struct {
	flag string
	key  string
}{
	{"log-level", "logging.level"},
	{"log-json", "logging.json"},
	{"otlp-endpoint", "telemetry.otlp_endpoint"},
	{"metrics-addr", "telemetry.metrics_addr"},
}

// Options holds the persistent flags shared by all commands.
type Options struct {
	ConfigPath string

	viper *viper.Viper
}

// NewOptions creates Options with a fresh viper instance.
func NewOptions() *Options {
	return &Options{viper: viper.New()}
}

// Bind registers the persistent flags on root and binds them to config keys.
func (o *Options) Bind(root *cobra.Command) error {
	flags := root.PersistentFlags()

	flags.StringVar(&o.ConfigPath, "config", "", "config file (default .gitgraft.yaml in CWD or $HOME)")
	flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.Bool("log-json", config.DefaultLogJSON, "emit JSON logs")
	flags.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces and metrics")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on host:port")

	for _, b := range boundFlags {
		err := o.viper.BindPFlag(b.key, flags.Lookup(b.flag))
		if err != nil {
			return fmt.Errorf("bind --%s: %w", b.flag, err)
		}
	}

	return nil
}

// Load resolves the configuration from defaults, file, env and flags.
func (o *Options) Load() (*config.Config, error) {
	return config.LoadWith(o.viper, o.ConfigPath)
}

// initObservability maps cfg onto the observability stack.
func initObservability(cfg *config.Config, mode observability.AppMode, logOutput io.Writer) (observability.Providers, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Providers{}, err
	}

	obs := observability.DefaultConfig()
	obs.ServiceVersion = version.Version
	obs.Mode = mode
	obs.LogLevel = level
	obs.LogJSON = cfg.Logging.JSON
	obs.LogOutput = logOutput
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obs.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obs.Prometheus = cfg.Telemetry.MetricsAddr != ""

	return observability.Init(obs)
}
