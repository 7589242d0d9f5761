package aggregator

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

// ErrConsistency means the stages ran out of order: a rollup references a
// call that has no insight on disk. Fatal for the run, never silently
// dropped.
var ErrConsistency = errors.New("consistency violation")

// Aggregate merges all batch rollups into one GlobalView. Counts are
// additive keyed by normalized intent label; FAQ candidates are a plain
// union (deduplication happens downstream); flag and emotion tables count
// occurrences across the CallInsights reachable from the batches. The view
// is recomputed from scratch, never incrementally updated.
func Aggregate(rollups []types.BatchRollup, insights map[string]types.CallInsight) (types.GlobalView, error) {
	intentCounts := map[string]int{}
	intentLabels := map[string]string{}
	view := types.GlobalView{
		QualityFlagCounts:   map[string]int{},
		ClientEmotionCounts: map[string]int{},
	}

	// Deterministic candidate ordering needs deterministic rollup ordering.
	sorted := append([]types.BatchRollup(nil), rollups...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BatchID < sorted[j].BatchID })

	seenCalls := map[string]bool{}
	for _, rollup := range sorted {
		for _, ic := range rollup.TopIntents {
			key := types.NormalizeKey(ic.Intent)
			intentCounts[key] += ic.Count
			if _, ok := intentLabels[key]; !ok {
				intentLabels[key] = types.Normalize(ic.Intent)
			}
		}
		view.FAQCandidates = append(view.FAQCandidates, rollup.FAQCandidates...)
		for _, callID := range rollup.CallIDs {
			ins, ok := insights[callID]
			if !ok {
				return types.GlobalView{}, fmt.Errorf("%w: batch %s references call %s with no insight record", ErrConsistency, rollup.BatchID, callID)
			}
			if seenCalls[callID] {
				continue
			}
			seenCalls[callID] = true
			for _, flag := range ins.QualityFlags {
				view.QualityFlagCounts[types.NormalizeKey(flag)]++
			}
			if ins.ClientEmotion != "" {
				view.ClientEmotionCounts[types.NormalizeKey(ins.ClientEmotion)]++
			}
		}
	}

	for key, count := range intentCounts {
		view.TopIntents = append(view.TopIntents, types.IssueCount{Intent: intentLabels[key], Count: count})
	}
	sort.Slice(view.TopIntents, func(i, j int) bool {
		a, b := view.TopIntents[i], view.TopIntents[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Intent < b.Intent
	})
	sort.Slice(view.FAQCandidates, func(i, j int) bool {
		a, b := view.FAQCandidates[i], view.FAQCandidates[j]
		if len(a.SourceCallIDs) != len(b.SourceCallIDs) {
			return len(a.SourceCallIDs) > len(b.SourceCallIDs)
		}
		return a.CandidateID < b.CandidateID
	})
	return view, nil
}

// LoadRollups reads every rollup file in dir.
func LoadRollups(dir string) ([]types.BatchRollup, error) {
	paths, err := store.ListJSON(dir)
	if err != nil {
		return nil, err
	}
	var out []types.BatchRollup
	for _, path := range paths {
		var rollup types.BatchRollup
		if err := store.ReadJSON(path, &rollup); err != nil {
			return nil, fmt.Errorf("rollup %s: %w", filepath.Base(path), err)
		}
		out = append(out, rollup)
	}
	return out, nil
}

// LoadInsights reads every per-call insight in dir, keyed by call id.
func LoadInsights(dir string) (map[string]types.CallInsight, error) {
	paths, err := store.ListJSON(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.CallInsight, len(paths))
	for _, path := range paths {
		var ins types.CallInsight
		if err := store.ReadJSON(path, &ins); err != nil {
			return nil, fmt.Errorf("insight %s: %w", filepath.Base(path), err)
		}
		if ins.CallID == "" {
			ins.CallID = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		out[ins.CallID] = ins
	}
	return out, nil
}

// ListInsights returns insights sorted by call id, the fixed input order
// for batching.
func ListInsights(dir string) ([]types.CallInsight, error) {
	byID, err := LoadInsights(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]types.CallInsight, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}
