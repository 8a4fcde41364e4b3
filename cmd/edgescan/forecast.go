package main

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/spf13/cobra"
)

func (a *app) forecastCmd() *cobra.Command {
	var showReport bool

	cmd := &cobra.Command{
		Use:   "forecast <market description>",
		Short: "Forecast a single market description (cached)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			description := strings.Join(args, " ")

			c, closeCache, err := openCache(ctx, a.cfg.Cache, nil)
			if err != nil {
				return err
			}
			defer closeWith("cache", closeCache)

			pipeline := newPipeline(a.cfg.LLM, c, nil)

			if showReport {
				report, err := pipeline.Report(ctx, description)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nResearch report:\n\n%s\n", report)
			}

			f, err := pipeline.Forecast(ctx, description)
			if err != nil {
				return err
			}
			notify.NewConsoleWriter(cmd.OutOrStdout(), true, 0).PrintForecast(description, f)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showReport, "report", false, "also print the research report")
	return cmd
}
