package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ReportFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
	"github.com/ManuelReschke/ReportFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReportFox/internal/pkg/mail"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ReportFox/internal/pkg/payment"
)

func sweepCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every maintenance task once",
		Long: `Run the maintenance tasks the server otherwise runs on tickers:
cancel pending orders older than ORDER_PENDING_TTL, delete stale
temporary viewer files and flush buffered report view counts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.SetupDatabase(cfg.DB)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			rdb := cache.SetupCache(cfg.Cache)
			defer rdb.Close()

			notifier := mail.NewNotifier(mail.DirectDispatcher{Sender: mail.NewSender(cfg.Mail)}, cfg.App.FrontendURL, cfg.App.Currency)
			payments := payment.NewServiceFromDB(db, payment.Gateways{}, notifier, nil, payment.Options{Currency: cfg.App.Currency})

			manager := jobqueue.NewManager(nil, jobqueue.SweepTasks(cfg.Sweeper, jobqueue.SweepDeps{
				Orders:     payments,
				Counters:   counter.NewViewCounter(rdb, db),
				PendingTTL: cfg.Orders.PendingTTL,
				TempDir:    cfg.Storage.TempDir,
			})...)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := manager.RunOnce(ctx); err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Println("Sweep finished")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "abort the sweep after this long")
	return cmd
}
