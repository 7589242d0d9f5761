package main

import (
	"os"

	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/logger"
	"call-kb-go/internal/pairs"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Export the flat question/answer rows",
	Long: `Flattens every verbatim Q/A pair across the per-call insights into a
newline-delimited JSON export for downstream ingestion, tagging each row
with the KB entry its call contributes to. Run after "kb build" so the
tags resolve; without a KB the rows are exported untagged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New().WithStage("pairs")

		unlock, err := store.Lock(cfg.NLUDir())
		if err != nil {
			return err
		}
		defer unlock()

		var entries []types.KBEntry
		if err := store.ReadJSON(kbJSONPath(cfg), &entries); err != nil && !os.IsNotExist(err) {
			return err
		}
		rows, err := pairs.Export(cfg.InsightsDir(), entries)
		if err != nil {
			return err
		}
		if err := pairs.WriteJSONL(nluPath(cfg), rows); err != nil {
			return err
		}
		log.WithField("rows", len(rows)).WithField("entries", len(entries)).Info("pairs exported")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairsCmd)
}
