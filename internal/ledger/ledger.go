package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-kb-go/internal/kb"
	"call-kb-go/internal/pairs"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

var (
	// ErrEntryNotFound means the referenced KB entry does not exist.
	ErrEntryNotFound = errors.New("kb entry not found")
	// ErrNothingToUndo means no live correction remains on the ledger.
	ErrNothingToUndo = errors.New("no correction to undo")
	// ErrLedgerAmbiguous means the entry and the ledger head disagree in a
	// way recovery cannot resolve on its own; a human has to look.
	ErrLedgerAmbiguous = errors.New("ledger and kb entry are inconsistent")
	// ErrLedgerCorrupt means a ledger line failed to parse.
	ErrLedgerCorrupt = errors.New("corrupt ledger record")
)

// Ledger is the append-only record of human edits to the knowledge base.
//
// Commit ordering: Apply appends its record (fsync) before mutating the
// entry, so a crash mid-apply is rolled forward by Recover. Undo mutates
// the entry first and appends its record last, so a crash mid-undo leaves
// the undo uncommitted and Recover rolls the entry forward to the still-
// live correction. Either way the committed state is whatever the ledger
// head implies.
type Ledger struct {
	ledgerPath string
	kbPath     string
	kbMDPath   string
	kbYAMLPath string
	nluPath    string
	log        *logrus.Entry
}

func New(ledgerPath, kbPath, kbMDPath, kbYAMLPath, nluPath string, log *logrus.Entry) *Ledger {
	return &Ledger{
		ledgerPath: ledgerPath,
		kbPath:     kbPath,
		kbMDPath:   kbMDPath,
		kbYAMLPath: kbYAMLPath,
		nluPath:    nluPath,
		log:        log,
	}
}

// Apply validates the entry, appends the correction record, updates the
// entry's answer in place (clearing pending_review) and re-derives only the
// affected flat-export rows.
func (l *Ledger) Apply(entryID, newAnswer, reason string) (types.Correction, error) {
	entries, idx, err := l.findEntry(entryID)
	if err != nil {
		return types.Correction{}, err
	}
	snaps, err := pairs.Snapshot(l.nluPath, entryID)
	if err != nil {
		return types.Correction{}, err
	}
	record := types.Correction{
		CorrectionID: uuid.New().String(),
		Type:         types.CorrectionTypeCorrected,
		EntryID:      entryID,
		PrevAnswer:   entries[idx].Answer,
		NewAnswer:    types.Normalize(newAnswer),
		Reason:       reason,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Reversible:   true,
		PrevRows:     snaps,
	}
	if err := store.AppendLine(l.ledgerPath, record); err != nil {
		return types.Correction{}, err
	}
	if err := l.mutateEntry(entries, idx, record.NewAnswer, false, record.Timestamp, reason); err != nil {
		return types.Correction{}, err
	}
	note := fmt.Sprintf("corrected %s: %s", record.Timestamp, reason)
	if _, err := pairs.Rederive(l.nluPath, entryID, record.NewAnswer, note); err != nil {
		return types.Correction{}, err
	}
	l.log.WithField("entry_id", entryID).WithField("correction_id", record.CorrectionID).Info("correction applied")
	return record, nil
}

// Confirm marks an entry's current answer as reviewed-correct without
// changing it, clearing pending_review.
func (l *Ledger) Confirm(entryID, reason string) (types.Correction, error) {
	entries, idx, err := l.findEntry(entryID)
	if err != nil {
		return types.Correction{}, err
	}
	record := types.Correction{
		CorrectionID: uuid.New().String(),
		Type:         types.CorrectionTypeConfirmed,
		EntryID:      entryID,
		Reason:       reason,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := l.mutateEntry(entries, idx, entries[idx].Answer, false, record.Timestamp, reason); err != nil {
		return types.Correction{}, err
	}
	if err := store.AppendLine(l.ledgerPath, record); err != nil {
		return types.Correction{}, err
	}
	l.log.WithField("entry_id", entryID).Info("entry confirmed")
	return record, nil
}

// UndoLast reverts the most recent not-yet-undone correction: restores the
// prior answer on the entry and the snapshotted flat-export rows, then
// appends the undo record that commits the operation.
func (l *Ledger) UndoLast() (types.Correction, error) {
	records, err := l.Records()
	if err != nil {
		return types.Correction{}, err
	}
	target, ok := lastLiveCorrection(records)
	if !ok {
		return types.Correction{}, ErrNothingToUndo
	}
	entries, idx, err := l.findEntry(target.EntryID)
	if err != nil {
		return types.Correction{}, err
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if err := l.mutateEntry(entries, idx, target.PrevAnswer, true, ts, fmt.Sprintf("reverted correction %s", target.CorrectionID)); err != nil {
		return types.Correction{}, err
	}
	if err := pairs.Restore(l.nluPath, target.PrevRows); err != nil {
		return types.Correction{}, err
	}
	undo := types.Correction{
		CorrectionID: uuid.New().String(),
		Type:         types.CorrectionTypeUndo,
		EntryID:      target.EntryID,
		Timestamp:    ts,
		UndoneID:     target.CorrectionID,
	}
	if err := store.AppendLine(l.ledgerPath, undo); err != nil {
		return types.Correction{}, err
	}
	l.log.WithField("entry_id", target.EntryID).WithField("undone", target.CorrectionID).Info("correction undone")
	return undo, nil
}

// Recover runs the startup consistency pass: it compares the referenced
// entry's answer against the ledger's head record and repairs a single
// half-applied state. Ambiguous disagreement is surfaced, not guessed at.
// Returns true when a repair was made.
func (l *Ledger) Recover() (bool, error) {
	records, err := l.Records()
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	head := records[len(records)-1]

	switch head.Type {
	case types.CorrectionTypeCorrected:
		entries, idx, err := l.findEntry(head.EntryID)
		if err != nil {
			return false, fmt.Errorf("%w: head references %s: %v", ErrLedgerAmbiguous, head.EntryID, err)
		}
		current := entries[idx].Answer
		if current == head.NewAnswer {
			return false, nil
		}
		if current != head.PrevAnswer {
			return false, fmt.Errorf("%w: entry %s answer matches neither side of correction %s", ErrLedgerAmbiguous, head.EntryID, head.CorrectionID)
		}
		// Apply crashed after the ledger append: roll the entry forward.
		if err := l.mutateEntry(entries, idx, head.NewAnswer, false, head.Timestamp, head.Reason); err != nil {
			return false, err
		}
		note := fmt.Sprintf("corrected %s: %s", head.Timestamp, head.Reason)
		if _, err := pairs.Rederive(l.nluPath, head.EntryID, head.NewAnswer, note); err != nil {
			return false, err
		}
		l.log.WithField("correction_id", head.CorrectionID).Warn("repaired half-applied correction")
		return true, nil

	case types.CorrectionTypeUndo:
		var target *types.Correction
		for i := range records {
			if records[i].CorrectionID == head.UndoneID {
				target = &records[i]
				break
			}
		}
		if target == nil {
			return false, fmt.Errorf("%w: undo %s references unknown correction %s", ErrLedgerCorrupt, head.CorrectionID, head.UndoneID)
		}
		entries, idx, err := l.findEntry(head.EntryID)
		if err != nil {
			return false, fmt.Errorf("%w: head references %s: %v", ErrLedgerAmbiguous, head.EntryID, err)
		}
		current := entries[idx].Answer
		if current == target.PrevAnswer {
			return false, nil
		}
		if current != target.NewAnswer {
			return false, fmt.Errorf("%w: entry %s answer matches neither side of undone correction %s", ErrLedgerAmbiguous, head.EntryID, target.CorrectionID)
		}
		if err := l.mutateEntry(entries, idx, target.PrevAnswer, true, head.Timestamp, fmt.Sprintf("reverted correction %s", target.CorrectionID)); err != nil {
			return false, err
		}
		if err := pairs.Restore(l.nluPath, target.PrevRows); err != nil {
			return false, err
		}
		l.log.WithField("correction_id", target.CorrectionID).Warn("repaired half-applied undo")
		return true, nil

	default:
		// Confirmed records carry no answer mutation to repair.
		return false, nil
	}
}

// Records parses the full ledger in append order.
func (l *Ledger) Records() ([]types.Correction, error) {
	lines, err := store.ReadLines(l.ledgerPath)
	if err != nil {
		return nil, err
	}
	records := make([]types.Correction, 0, len(lines))
	for i, line := range lines {
		var record types.Correction
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrLedgerCorrupt, i+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// lastLiveCorrection returns the most recent corrected record that no undo
// record has reverted.
func lastLiveCorrection(records []types.Correction) (types.Correction, bool) {
	undone := map[string]bool{}
	for _, record := range records {
		if record.Type == types.CorrectionTypeUndo {
			undone[record.UndoneID] = true
		}
	}
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if record.Type == types.CorrectionTypeCorrected && !undone[record.CorrectionID] {
			return record, true
		}
	}
	return types.Correction{}, false
}

func (l *Ledger) findEntry(entryID string) ([]types.KBEntry, int, error) {
	var entries []types.KBEntry
	if err := store.ReadJSON(l.kbPath, &entries); err != nil {
		return nil, 0, fmt.Errorf("load kb: %w", err)
	}
	for i := range entries {
		if entries[i].EntryID == entryID {
			return entries, i, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
}

// mutateEntry updates one entry and rewrites the KB JSON plus its derived
// markdown and yaml forms so the three stay structurally consistent.
func (l *Ledger) mutateEntry(entries []types.KBEntry, idx int, answer string, pending bool, ts, comment string) error {
	entries[idx].Answer = answer
	entries[idx].PendingReview = pending
	entries[idx].LastReviewedAt = ts
	entries[idx].ReviewComment = comment
	if err := store.WriteJSON(l.kbPath, entries); err != nil {
		return err
	}
	if l.kbMDPath != "" {
		if err := store.WriteFile(l.kbMDPath, kb.RenderMarkdown(entries)); err != nil {
			return err
		}
	}
	if l.kbYAMLPath != "" {
		out, err := kb.RenderYAML(entries)
		if err != nil {
			return err
		}
		if err := store.WriteFile(l.kbYAMLPath, out); err != nil {
			return err
		}
	}
	return nil
}
