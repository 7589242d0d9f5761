package main

import (
	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/export"
	"call-kb-go/internal/logger"
	"call-kb-go/internal/pairs"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the reviewer workbook (xlsx)",
	Long: `Writes kb_review.xlsx with the KB entries and the flat Q/A rows, in the
same order as the JSON forms, for reviewers who work in spreadsheets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New().WithStage("export")

		var entries []types.KBEntry
		if err := store.ReadJSON(kbJSONPath(cfg), &entries); err != nil {
			return err
		}
		rows, err := pairs.ReadJSONL(nluPath(cfg))
		if err != nil {
			return err
		}
		if err := export.WriteWorkbook(kbXLSXPath(cfg), entries, rows); err != nil {
			return err
		}
		log.WithField("entries", len(entries)).WithField("rows", len(rows)).Info("workbook written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
