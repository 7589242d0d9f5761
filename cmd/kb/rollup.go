package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"call-kb-go/internal/aggregator"
	"call-kb-go/internal/batcher"
	"call-kb-go/internal/config"
	"call-kb-go/internal/logger"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Roll per-call insights up into batch rollups",
	Long: `Partitions the per-call insights into contiguous fixed-size batches (in
call-id order) and produces one deduplicated rollup per batch through the
language model. Failed batches are skipped and listed for re-run; rollups
are overwritten by batch id, so re-running the stage is always safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New().WithStage("rollup")

		if size, _ := cmd.Flags().GetInt("batch-size"); size > 0 {
			cfg.BatchSize = size
		}

		insights, err := aggregator.ListInsights(cfg.InsightsDir())
		if err != nil {
			return err
		}
		log.WithField("insights", len(insights)).WithField("batch_size", cfg.BatchSize).Info("starting rollup")

		completer, err := completerFor(cfg)
		if err != nil {
			return err
		}
		b := batcher.New(completer, cfg.MaxWorkers, log)
		res, err := b.Run(context.Background(), insights, cfg.BatchSize, cfg.RollupsDir())
		if err != nil {
			return err
		}
		log.WithField("attempted", res.Attempted).
			WithField("succeeded", len(res.Succeeded)).
			WithField("failed", len(res.Failed)).
			Info("rollup finished")
		for _, id := range res.Failed {
			fmt.Printf("FAILED batch %s (re-run this stage to retry)\n", id)
		}
		return nil
	},
}

func init() {
	rollupCmd.Flags().Int("batch-size", 0, "override BATCH_SIZE for this run")
	rootCmd.AddCommand(rollupCmd)
}
