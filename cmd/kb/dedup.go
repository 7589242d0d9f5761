package main

import (
	"context"

	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/dedup"
	"call-kb-go/internal/logger"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Cluster near-duplicate FAQ candidates by embedding similarity",
	Long: `Embeds every candidate question in the GlobalView and greedily clusters
near-duplicates against a running centroid. Multi-member clusters are
flagged pending_review; a re-run overwrites the cluster file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New().WithStage("dedup")

		if t, _ := cmd.Flags().GetFloat64("threshold"); t > 0 {
			cfg.SimilarityThreshold = t
		}

		unlock, err := store.Lock(cfg.GlobalDir())
		if err != nil {
			return err
		}
		defer unlock()

		var view types.GlobalView
		if err := store.ReadJSON(globalViewPath(cfg), &view); err != nil {
			return err
		}
		generator, err := generatorFor(cfg)
		if err != nil {
			return err
		}
		d := dedup.New(generator, cfg.MaxWorkers, log)
		clusters, err := d.Run(context.Background(), view.FAQCandidates, cfg.SimilarityThreshold)
		if err != nil {
			return err
		}
		if err := store.WriteJSON(clustersPath(cfg), clusters); err != nil {
			return err
		}
		log.WithField("candidates", len(view.FAQCandidates)).
			WithField("clusters", len(clusters)).
			WithField("threshold", cfg.SimilarityThreshold).
			Info("clusters written")
		return nil
	},
}

func init() {
	dedupCmd.Flags().Float64("threshold", 0, "override SIMILARITY_THRESHOLD for this run")
	rootCmd.AddCommand(dedupCmd)
}
