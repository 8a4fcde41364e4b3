package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired and corrupted cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, closeCache, err := openCache(ctx, a.cfg.Cache, nil)
			if err != nil {
				return err
			}
			defer closeWith("cache", closeCache)

			if a.cfg.Cache.Backend == "redis" {
				slog.Info("redis entries expire server-side, nothing to prune")
				return nil
			}

			removed, err := c.Prune(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries older than %s from %s\n",
				removed, c.TTL(), a.cfg.Cache.Dir)
			return nil
		},
	})
	return cmd
}
