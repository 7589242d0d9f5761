package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/embedding"
	"call-kb-go/internal/llm"
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Call knowledge-base pipeline",
	Long: `kb turns per-call insight records into a deduplicated FAQ knowledge base.

Stages run independently and are idempotent by identifier, so any stage can
be re-run after a partial failure:

  kb rollup     batch insights and roll each batch up through the LLM
  kb aggregate  merge all rollups into the global view
  kb dedup      cluster near-duplicate FAQ candidates by embedding
  kb build      synthesize the final KB entries
  kb pairs      export the flat Q/A rows
  kb export     write the reviewer workbook
  kb correct    apply or confirm a human correction
  kb undo       revert the most recent correction
  kb recover    repair a half-applied correction after a crash
  kb serve      run the review API`,
}

func main() {
	_ = godotenv.Load() // loads .env

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// completerFor returns the language-model collaborator, honoring the
// offline mock switch.
func completerFor(cfg config.Config) (llm.Completer, error) {
	if cfg.UseMockLLM {
		return &llm.Mock{}, nil
	}
	return llm.NewClient(cfg)
}

// generatorFor returns the embedding collaborator, honoring the same
// offline switch.
func generatorFor(cfg config.Config) (embedding.Generator, error) {
	if cfg.UseMockLLM {
		return &embedding.Mock{Dim: 32}, nil
	}
	return embedding.NewClient(cfg)
}

// Paths of the derived artifacts under the data dir.

func kbJSONPath(cfg config.Config) string     { return cfg.KBDir() + "/kb_faq.json" }
func kbMDPath(cfg config.Config) string       { return cfg.KBDir() + "/kb_faq.md" }
func kbYAMLPath(cfg config.Config) string     { return cfg.KBDir() + "/kb_faq.yaml" }
func kbXLSXPath(cfg config.Config) string     { return cfg.KBDir() + "/kb_review.xlsx" }
func globalViewPath(cfg config.Config) string { return cfg.GlobalDir() + "/global_view.json" }
func clustersPath(cfg config.Config) string   { return cfg.GlobalDir() + "/faq_clusters_dedup.json" }
func nluPath(cfg config.Config) string        { return cfg.NLUDir() + "/nlu_pairs.jsonl" }
func ledgerPath(cfg config.Config) string     { return cfg.LedgerDir() + "/corrections.jsonl" }
