package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-kb-go/internal/types"
)

// WriteWorkbook writes the reviewer workbook: one sheet with the KB entries
// and one with the flat Q/A rows, in the same order as the JSON forms.
func WriteWorkbook(path string, entries []types.KBEntry, rows []types.NLUPair) error {
	f := excelize.NewFile()
	defer f.Close()

	const kbSheet = "Knowledge Base"
	if err := f.SetSheetName("Sheet1", kbSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	kbHeader := []any{"entry_id", "question", "answer", "source_calls", "pending_review", "last_reviewed_at", "review_comment"}
	if err := f.SetSheetRow(kbSheet, "A1", &kbHeader); err != nil {
		return fmt.Errorf("write kb header: %w", err)
	}
	for i, entry := range entries {
		row := []any{
			entry.EntryID,
			entry.Question,
			entry.Answer,
			len(entry.SourceCallIDs),
			entry.PendingReview,
			entry.LastReviewedAt,
			entry.ReviewComment,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(kbSheet, cell, &row); err != nil {
			return fmt.Errorf("write kb row %d: %w", i+1, err)
		}
	}

	const pairSheet = "QA Pairs"
	if _, err := f.NewSheet(pairSheet); err != nil {
		return fmt.Errorf("create pairs sheet: %w", err)
	}
	pairHeader := []any{"call_id", "pair_index", "question", "answer", "intent", "hashtags", "entry_id", "needs_review", "review_notes"}
	if err := f.SetSheetRow(pairSheet, "A1", &pairHeader); err != nil {
		return fmt.Errorf("write pairs header: %w", err)
	}
	for i, pair := range rows {
		row := []any{
			pair.CallID,
			pair.PairIndex,
			pair.Question,
			pair.Answer,
			pair.Intent,
			strings.Join(pair.Hashtags, ", "),
			pair.EntryID,
			pair.NeedsReview,
			pair.ReviewNotes,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(pairSheet, cell, &row); err != nil {
			return fmt.Errorf("write pairs row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
