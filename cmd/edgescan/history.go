package main

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/spf13/cobra"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		days  int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show positive-edge records stored by past scans, best EV first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}

			store, err := storage.NewSQLiteStorage(a.cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer closeWith("storage", store.Close)

			to := time.Now()
			records, err := store.GetHistory(cmd.Context(), to.Add(-time.Duration(days)*24*time.Hour), to)
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			notify.NewConsoleWriter(cmd.OutOrStdout(), true, 0).PrintRecords(records)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "look back this many days")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to print (0 = all)")
	return cmd
}
