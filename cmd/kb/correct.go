package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/ledger"
	"call-kb-go/internal/logger"
)

func ledgerFor(cfg config.Config) *ledger.Ledger {
	log := logger.New().WithField("component", "ledger")
	return ledger.New(ledgerPath(cfg), kbJSONPath(cfg), kbMDPath(cfg), kbYAMLPath(cfg), nluPath(cfg), log)
}

// recoverFirst runs the startup consistency pass before any ledger
// operation, per the crash-recovery contract.
func recoverFirst(l *ledger.Ledger) error {
	repaired, err := l.Recover()
	if err != nil {
		return err
	}
	if repaired {
		fmt.Fprintln(os.Stderr, "recovered a half-applied correction before proceeding")
	}
	return nil
}

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Apply or confirm a human correction to a KB entry",
	Long: `Applies a reviewed answer to a KB entry: the correction is appended to the
ledger, the entry is updated in place, and only the affected flat-export
rows are re-derived. With --confirm the current answer is marked reviewed
without changing it.

Examples:
  kb correct --entry 3f2a9c81d044 --answer "Updated answer text" --reason "wrong fee"
  kb correct --entry 3f2a9c81d044 --confirm --reason "verified against policy"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		entryID, _ := cmd.Flags().GetString("entry")
		answer, _ := cmd.Flags().GetString("answer")
		reason, _ := cmd.Flags().GetString("reason")
		confirm, _ := cmd.Flags().GetBool("confirm")

		if entryID == "" {
			return fmt.Errorf("--entry is required")
		}
		if !confirm && answer == "" {
			return fmt.Errorf("--answer is required unless --confirm is set")
		}

		l := ledgerFor(cfg)
		if err := recoverFirst(l); err != nil {
			return err
		}
		if confirm {
			record, err := l.Confirm(entryID, reason)
			if err != nil {
				return err
			}
			return printRecord(record)
		}
		record, err := l.Apply(entryID, answer, reason)
		if err != nil {
			return err
		}
		return printRecord(record)
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the most recent correction",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		l := ledgerFor(cfg)
		if err := recoverFirst(l); err != nil {
			return err
		}
		record, err := l.UndoLast()
		if err != nil {
			return err
		}
		return printRecord(record)
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Repair a half-applied correction after a crash",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		repaired, err := ledgerFor(cfg).Recover()
		if err != nil {
			return err
		}
		if repaired {
			fmt.Println("repaired a half-applied correction")
		} else {
			fmt.Println("ledger and knowledge base are consistent")
		}
		return nil
	},
}

func printRecord(record any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

func init() {
	correctCmd.Flags().String("entry", "", "KB entry id")
	correctCmd.Flags().String("answer", "", "corrected answer text")
	correctCmd.Flags().String("reason", "", "why the answer changed")
	correctCmd.Flags().Bool("confirm", false, "mark the current answer reviewed-correct")
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(recoverCmd)
}
