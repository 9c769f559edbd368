package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dsbridge/dsbridge/pkg/config"
	"github.com/dsbridge/dsbridge/pkg/invoke"
	"github.com/dsbridge/dsbridge/pkg/synology"
)

var (
	configPath string
	logLevel   string
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	bridge   *synology.Bridge
}

var current *app

func main() {
	if isCGI() {
		if err := serveCGI(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dsbridge",
		Short: "Bridge to Synology DSM authentication",
		Long: `dsbridge lets third-party web applications on a Synology appliance
log users in and out of DSM, check the active session, and look up users.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath, logLevel, os.Stderr)
			if err != nil {
				return err
			}
			current = a
			return nil
		},
	}

	defaultConfig := os.Getenv("DSBRIDGE_CONFIG")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to configuration file (env: DSBRIDGE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// setup loads configuration and wires the logger, metrics and bridge.
// Logs go to logOut, never to stdout, which carries CGI output.
func setup(path, level string, logOut io.Writer) (*app, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if level != "" {
		cfg.Log.Level = level
	}

	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	invokeMetrics := invoke.NewMetrics()
	bridgeMetrics := synology.NewMetrics()
	registry.MustRegister(invokeMetrics, bridgeMetrics)

	runner := invoke.New(logger.With(slog.String("component", "invoke")))
	runner.Shell = cfg.Bridge.Shell
	runner.Timeout = cfg.Bridge.Timeout
	runner.Metrics = invokeMetrics

	bridge := synology.New(cfg.Bridge.SynologyConfig(), runner,
		synology.WithLogger(logger.With(slog.String("component", "bridge"))),
		synology.WithMetrics(bridgeMetrics),
		synology.WithLookupRetry(cfg.Bridge.LookupRetry()),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		bridge:   bridge,
	}, nil
}

func newLogger(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(out, opts)), nil
}
