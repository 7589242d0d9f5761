package pairs

import (
	"encoding/json"
	"fmt"
	"strings"

	"call-kb-go/internal/aggregator"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

// Export flattens every verbatim Q/A pair across the insights into rows for
// downstream ingestion. Rows that have neither question nor answer are
// dropped (the analysis stage emits those when extraction came up empty).
// Each row is tagged with the id of the first KB entry (in KB order) whose
// source calls include the row's call, so corrections can re-derive only the
// affected rows later.
func Export(insightsDir string, entries []types.KBEntry) ([]types.NLUPair, error) {
	insights, err := aggregator.ListInsights(insightsDir)
	if err != nil {
		return nil, err
	}
	rows := []types.NLUPair{}
	for _, ins := range insights {
		entryID := entryForCall(ins.CallID, entries)
		for i, pair := range ins.VerbatimPairs {
			q := strings.TrimSpace(pair.Question)
			a := strings.TrimSpace(pair.Answer)
			if q == "" && a == "" {
				continue
			}
			qs := pair.QuestionSpeaker
			if qs == "" {
				qs = "client"
			}
			as := pair.AnswerSpeaker
			if as == "" {
				as = "agent"
			}
			rows = append(rows, types.NLUPair{
				CallID:       ins.CallID,
				PairIndex:    i + 1,
				Question:     q,
				Answer:       a,
				QuestionFrom: qs,
				AnswerFrom:   as,
				Intent:       ins.ClientIntent,
				Hashtags:     Hashtags(ins.ClientIntent, ins.Subtopics),
				QualityFlags: ins.QualityFlags,
				EntryID:      entryID,
			})
		}
	}
	return rows, nil
}

func entryForCall(callID string, entries []types.KBEntry) string {
	for _, entry := range entries {
		for _, id := range entry.SourceCallIDs {
			if id == callID {
				return entry.EntryID
			}
		}
	}
	return ""
}

// Hashtags merges the intent and subtopics into a deduplicated tag list,
// preserving first-seen order.
func Hashtags(intent string, subtopics []string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, value := range append([]string{intent}, subtopics...) {
		tag := strings.TrimSpace(value)
		if tag == "" || seen[tag] {
			continue
		}
		tags = append(tags, tag)
		seen[tag] = true
	}
	return tags
}

// WriteJSONL writes the rows as newline-delimited JSON, atomically.
func WriteJSONL(path string, rows []types.NLUPair) error {
	var b strings.Builder
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row %s#%d: %w", row.CallID, row.PairIndex, err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return store.WriteFile(path, []byte(b.String()))
}

// ReadJSONL loads a previously written export. Missing file means no rows.
func ReadJSONL(path string) ([]types.NLUPair, error) {
	lines, err := store.ReadLines(path)
	if err != nil {
		return nil, err
	}
	rows := make([]types.NLUPair, 0, len(lines))
	for i, line := range lines {
		var row types.NLUPair
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Snapshot remembers a row's answer before a correction touched it, so an
// undo can restore the exact pre-correction export.
func Snapshot(path, entryID string) ([]types.RowSnapshot, error) {
	rows, err := ReadJSONL(path)
	if err != nil {
		return nil, err
	}
	var snaps []types.RowSnapshot
	for _, row := range rows {
		if row.EntryID == entryID {
			snaps = append(snaps, types.RowSnapshot{
				CallID:      row.CallID,
				PairIndex:   row.PairIndex,
				PrevAnswer:  row.Answer,
				NeedsReview: row.NeedsReview,
				ReviewNotes: row.ReviewNotes,
			})
		}
	}
	return snaps, nil
}

// Rederive rewrites only the rows belonging to entryID, replacing their
// answer and review note, and leaves every other row untouched. Returns how
// many rows changed. This is the partial re-derivation used by the
// correction ledger instead of a full rebuild.
func Rederive(path, entryID, answer, note string) (int, error) {
	rows, err := ReadJSONL(path)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range rows {
		if rows[i].EntryID != entryID {
			continue
		}
		if rows[i].Answer == answer && rows[i].ReviewNotes == note {
			continue
		}
		rows[i].Answer = answer
		rows[i].NeedsReview = false
		rows[i].ReviewNotes = note
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := WriteJSONL(path, rows); err != nil {
		return 0, err
	}
	return changed, nil
}

// Restore puts snapshotted rows back exactly as they were before the
// correction, the undo side of Rederive.
func Restore(path string, snaps []types.RowSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows, err := ReadJSONL(path)
	if err != nil {
		return err
	}
	byKey := make(map[string]types.RowSnapshot, len(snaps))
	for _, snap := range snaps {
		byKey[fmt.Sprintf("%s#%d", snap.CallID, snap.PairIndex)] = snap
	}
	changed := false
	for i := range rows {
		snap, ok := byKey[fmt.Sprintf("%s#%d", rows[i].CallID, rows[i].PairIndex)]
		if !ok {
			continue
		}
		if rows[i].Answer == snap.PrevAnswer && rows[i].NeedsReview == snap.NeedsReview && rows[i].ReviewNotes == snap.ReviewNotes {
			continue
		}
		rows[i].Answer = snap.PrevAnswer
		rows[i].NeedsReview = snap.NeedsReview
		rows[i].ReviewNotes = snap.ReviewNotes
		changed = true
	}
	if !changed {
		return nil
	}
	return WriteJSONL(path, rows)
}
