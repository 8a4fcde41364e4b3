package main

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/alejandrodnm/polyedge/internal/scanner"
	"github.com/spf13/cobra"
)

func (a *app) scanCmd() *cobra.Command {
	var (
		once        bool
		table       bool
		source      string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Forecast selected markets and rank their tokens by edge and EV",
		Long: `Fetch markets, forecast each one through the research and reasoning
services (cached), price every token against its best ask and print the
rankings. Runs every scanner.interval_seconds unless --once is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			switch source {
			case "":
			case scanner.SourceMarkets, scanner.SourceEvents:
				cfg.Scanner.Source = source
			default:
				return fmt.Errorf("unknown --source %q (want markets|events)", source)
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}
			ctx := cmd.Context()

			reg, m := newMetrics()
			if cfg.Metrics.Addr != "" {
				serveMetrics(ctx, cfg.Metrics.Addr, reg)
			}

			c, closeCache, err := openCache(ctx, cfg.Cache, m)
			if err != nil {
				return err
			}
			defer closeWith("cache", closeCache)

			store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer closeWith("storage", store.Close)

			client := polymarket.NewClient(polymarket.Config{
				CLOBBase:   cfg.API.CLOBBase,
				GammaBase:  cfg.API.GammaBase,
				Timeout:    cfg.APITimeout(),
				MaxRetries: cfg.API.MaxRetries,
			})

			scanCfg := scanner.DefaultConfig()
			scanCfg.ScanInterval = cfg.ScanInterval()
			scanCfg.Workers = cfg.Scanner.ForecastWorkers
			scanCfg.Source = cfg.Scanner.Source
			scanCfg.Once = once
			scanCfg.Filter = scanner.FilterConfig{
				MinHoursToResolution: cfg.Filter.MinHoursToResolution,
				MaxDaysToResolution:  cfg.Filter.MaxDaysToResolution,
				RequireEndDate:       !cfg.Filter.AllowMissingEndDate,
				ExcludeCategories:    cfg.Filter.ExcludeCategories,
				MaxMarkets:           cfg.Filter.MaxMarkets,
			}
			scanCfg.Events = ports.EventQuery{
				Active:     true,
				Closed:     cfg.Events.IncludeClosed,
				IncludeTag: cfg.Events.IncludeTag,
				ExcludeTag: cfg.Events.ExcludeTag,
				OrderBook:  !cfg.Events.IncludeWithoutOrderBook,
			}

			s := scanner.New(scanCfg,
				client, client, client,
				newPipeline(cfg.LLM, c, m),
				store,
				notify.NewConsole(table, cfg.Scanner.Top),
				m,
			)

			slog.Info("edgescan starting",
				"config", a.configPath,
				"source", scanCfg.Source,
				"workers", scanCfg.Workers,
				"cache", cfg.Cache.Backend,
				"once", once,
			)
			if err := s.Run(ctx); err != nil {
				return err
			}
			slog.Info("edgescan stopped cleanly")
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one scan cycle and exit")
	cmd.Flags().BoolVar(&table, "table", true, "print full ranking tables (false: compact 1-line)")
	cmd.Flags().StringVar(&source, "source", "", "market source: markets|events (overrides config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	return cmd
}
