// Package cmd - run command
package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocp-cost-aggregator/core/engine"
	"ocp-cost-aggregator/core/objstore"
	"ocp-cost-aggregator/db"
	"ocp-cost-aggregator/internal/config"
	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

var truncateTables bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the configured providers for the target month",
	Long: `Read the partition month's telemetry, aggregate and attribute costs,
and replace the warehouse summary partitions.

By default each table is cleared only for the target (source, year, month)
partition. With --truncate the whole table is emptied first.

Examples:
  ocp-cost-aggregator run --config config.yaml
  ocp-cost-aggregator run --config config.yaml --truncate`,
	Args: cobra.NoArgs,
	RunE: runAggregation,
}

func init() {
	runCmd.Flags().BoolVar(&truncateTables, "truncate", false, "truncate target tables instead of clearing the partition")
}

func runAggregation(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()
	if cfgFile == "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	started := time.Now()

	store, err := objstore.NewClient(ctx, cfg.ObjectStore, cfg.Performance.MaxRetries)
	if err != nil {
		return err
	}

	warehouse, err := db.Connect(ctx, cfg.Database.DSN(), cfg.Database.Schema)
	if err != nil {
		return err
	}
	defer warehouse.Close()

	if err := engine.New(cfg, store, warehouse, truncateTables).Run(ctx); err != nil {
		logging.Error("run failed",
			zap.String("kind", string(errors.KindOf(err))), zap.Error(err))
		return err
	}

	logging.Info("run completed",
		zap.String("year", cfg.DateRange.Year),
		zap.String("month", cfg.DateRange.Month),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}
