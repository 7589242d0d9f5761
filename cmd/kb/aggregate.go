package main

import (
	"github.com/spf13/cobra"

	"call-kb-go/internal/aggregator"
	"call-kb-go/internal/config"
	"call-kb-go/internal/logger"
	"call-kb-go/internal/store"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Merge all batch rollups into the global view",
	Long: `Regenerates the entire GlobalView from the rollups on disk: additive
intent counts, the raw FAQ candidate union, and quality-flag/emotion
frequency tables. Nothing is merged incrementally, so the stage is
idempotent and safe after a partial rollup retry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New().WithStage("aggregate")

		unlock, err := store.Lock(cfg.GlobalDir())
		if err != nil {
			return err
		}
		defer unlock()

		rollups, err := aggregator.LoadRollups(cfg.RollupsDir())
		if err != nil {
			return err
		}
		insights, err := aggregator.LoadInsights(cfg.InsightsDir())
		if err != nil {
			return err
		}
		view, err := aggregator.Aggregate(rollups, insights)
		if err != nil {
			return err
		}
		if err := store.WriteJSON(globalViewPath(cfg), view); err != nil {
			return err
		}
		log.WithField("batches", len(rollups)).
			WithField("intents", len(view.TopIntents)).
			WithField("candidates", len(view.FAQCandidates)).
			Info("global view written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}
