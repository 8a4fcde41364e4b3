package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/spf13/cobra"
)

// app guarda los flags globales y la configuración cargada.
type app struct {
	configPath string
	verbose    bool
	logFormat  string

	cfg *config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("edgescan failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "edgescan",
		Short:         "Rank Polymarket contracts by forecast edge and expected value",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "config/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "set log level to debug")
	root.PersistentFlags().StringVar(&a.logFormat, "format", "", "log format: text|json (overrides config)")

	root.AddCommand(
		a.scanCmd(),
		a.forecastCmd(),
		a.cacheCmd(),
		a.historyCmd(),
	)
	return root
}

// loadConfig carga la configuración y configura el logger global.
func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	setupLogger(cfg.Log)

	a.cfg = cfg
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout queda para las tablas
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
