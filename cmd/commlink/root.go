package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/opd-ai/commlink"
	"github.com/opd-ai/commlink/config"
	"github.com/opd-ai/commlink/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
)

var globals struct {
	configPath  string
	dotenv      string
	logLevel    string
	logJSON     bool
	metricsAddr string
}

var rootCmd = &cobra.Command{
	Use:   "commlink",
	Short: "Terminal client for realtime chat and voice calls",
	Long: `commlink connects to a chat backend, follows conversations in realtime,
searches message history, sends messages and places voice calls.

Settings come from a YAML file (--config), a .env file and COMMLINK_*
environment variables, in increasing order of precedence.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(globals.logLevel, globals.logJSON)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globals.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&globals.dotenv, "env-file", ".env", "dotenv file loaded before COMMLINK_* overrides")
	flags.StringVar(&globals.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&globals.logJSON, "log-json", false, "log as JSON")
	flags.StringVar(&globals.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func setupLogging(level string, asJSON bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)
	if asJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// loadOptions builds the effective configuration from defaults, the config
// file and the environment.
func loadOptions() (config.Options, error) {
	opts := config.Default()
	if globals.configPath != "" {
		if err := opts.LoadFile(globals.configPath); err != nil {
			return opts, err
		}
	}
	if err := opts.ApplyEnv(globals.dotenv); err != nil {
		return opts, err
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// newClient creates a client and, with --metrics-addr, serves its metrics.
func newClient() (*commlink.Client, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}
	var m *metrics.Metrics
	if globals.metricsAddr != "" {
		m = serveMetrics(globals.metricsAddr)
	}
	return commlink.New(opts, commlink.Deps{Metrics: m})
}

func serveMetrics(addr string) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "serveMetrics",
			"addr":     addr,
		}).Info("Serving metrics")
		if err := fasthttp.ListenAndServe(addr, handler); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"addr":     addr,
				"error":    err.Error(),
			}).Error("Metrics server stopped")
		}
	}()
	return m
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
