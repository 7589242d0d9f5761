package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/kb"
	"call-kb-go/internal/logger"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Synthesize the final knowledge base from the cluster set",
	Long: `Produces one KB entry per cluster, consulting the language model only when
a cluster's member answers disagree. Writes the KB JSON plus its markdown
and yaml forms. Entries whose cluster is unchanged are reused verbatim, so
rebuilding never clobbers reviewed answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New().WithStage("build")

		unlock, err := store.Lock(cfg.KBDir())
		if err != nil {
			return err
		}
		defer unlock()

		var clusters []types.FAQCluster
		if err := store.ReadJSON(clustersPath(cfg), &clusters); err != nil {
			return err
		}
		var view types.GlobalView
		if err := store.ReadJSON(globalViewPath(cfg), &view); err != nil {
			return err
		}
		candidates := make(map[string]types.FAQCandidate, len(view.FAQCandidates))
		for _, cand := range view.FAQCandidates {
			candidates[cand.CandidateID] = cand
		}

		var existing []types.KBEntry
		if err := store.ReadJSON(kbJSONPath(cfg), &existing); err != nil && !os.IsNotExist(err) {
			return err
		}

		completer, err := completerFor(cfg)
		if err != nil {
			return err
		}
		synth := kb.NewSynthesizer(completer, log)
		entries, err := synth.Build(context.Background(), clusters, candidates, existing)
		if err != nil {
			return err
		}

		if err := store.WriteJSON(kbJSONPath(cfg), entries); err != nil {
			return err
		}
		if err := store.WriteFile(kbMDPath(cfg), kb.RenderMarkdown(entries)); err != nil {
			return err
		}
		yml, err := kb.RenderYAML(entries)
		if err != nil {
			return err
		}
		if err := store.WriteFile(kbYAMLPath(cfg), yml); err != nil {
			return err
		}
		log.WithField("entries", len(entries)).Info("knowledge base written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
