package aggregator

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-kb-go/internal/batcher"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

func insightFixtures(n int) map[string]types.CallInsight {
	out := make(map[string]types.CallInsight, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("call-%03d", i+1)
		ins := types.CallInsight{
			CallID:        id,
			ClientIntent:  "contract extension",
			ClientEmotion: "calm",
			QualityFlags:  []string{"long_hold"},
			Resolution:    types.ResolutionResolved,
		}
		if i%2 == 0 {
			ins.ClientEmotion = "frustrated"
			ins.QualityFlags = append(ins.QualityFlags, "interrupted")
		}
		out[id] = ins
	}
	return out
}

// rollupsFor derives one rollup per batch of size k, one intent count per
// call, the way the batch stage would for these fixtures.
func rollupsFor(insights map[string]types.CallInsight, k int) []types.BatchRollup {
	ordered := make([]types.CallInsight, 0, len(insights))
	for i := 0; i < len(insights); i++ {
		ordered = append(ordered, insights[fmt.Sprintf("call-%03d", i+1)])
	}
	var rollups []types.BatchRollup
	for _, batch := range batcher.Partition(ordered, k) {
		ids := make([]string, len(batch))
		for i, ins := range batch {
			ids[i] = ins.CallID
		}
		batchID := batcher.BatchID(ids)
		rollups = append(rollups, types.BatchRollup{
			BatchID:    batchID,
			CallIDs:    ids,
			TopIntents: []types.IssueCount{{Intent: "Contract Extension", Count: len(batch)}},
			FAQCandidates: []types.FAQCandidate{{
				CandidateID:   batcher.CandidateID(batchID, "Как продлить договор?"),
				Question:      "Как продлить договор?",
				Answer:        "Свяжитесь с менеджером.",
				SourceCallIDs: ids,
			}},
		})
	}
	return rollups
}

func TestAggregateCounts(t *testing.T) {
	insights := insightFixtures(15)
	view, err := Aggregate(rollupsFor(insights, 10), insights)
	require.NoError(t, err)

	require.Len(t, view.TopIntents, 1)
	assert.Equal(t, "contract extension", view.TopIntents[0].Intent)
	assert.Equal(t, 15, view.TopIntents[0].Count)

	assert.Equal(t, 15, view.QualityFlagCounts["long_hold"])
	assert.Equal(t, 8, view.QualityFlagCounts["interrupted"])
	assert.Equal(t, 8, view.ClientEmotionCounts["frustrated"])
	assert.Equal(t, 7, view.ClientEmotionCounts["calm"])

	assert.Len(t, view.FAQCandidates, 2, "candidate union, no dedup at this stage")
}

func TestAggregateRebatchingInvariance(t *testing.T) {
	insights := insightFixtures(30)

	var views []types.GlobalView
	for _, k := range []int{5, 10, 30} {
		view, err := Aggregate(rollupsFor(insights, k), insights)
		require.NoError(t, err)
		views = append(views, view)
	}
	for _, view := range views[1:] {
		assert.Equal(t, views[0].TopIntents, view.TopIntents, "intent counts are batch-size independent")
		assert.Equal(t, views[0].QualityFlagCounts, view.QualityFlagCounts)
		assert.Equal(t, views[0].ClientEmotionCounts, view.ClientEmotionCounts)
	}
}

func TestAggregatePartialThenRetry(t *testing.T) {
	// 15 insights, batch size 10: batch 1 succeeded, batch 2 initially
	// failed. Aggregating the survivors then re-aggregating after the retry
	// must keep batch 1's contribution intact.
	insights := insightFixtures(15)
	rollups := rollupsFor(insights, 10)
	require.Len(t, rollups, 2)

	partial, err := Aggregate(rollups[:1], insights)
	require.NoError(t, err)
	assert.Equal(t, 10, partial.TopIntents[0].Count)

	full, err := Aggregate(rollups, insights)
	require.NoError(t, err)
	assert.Equal(t, 15, full.TopIntents[0].Count)
	assert.Len(t, full.FAQCandidates, 2)
}

func TestAggregateNormalizesIntentLabels(t *testing.T) {
	insights := insightFixtures(2)
	rollups := []types.BatchRollup{
		{BatchID: "b1", CallIDs: []string{"call-001"}, TopIntents: []types.IssueCount{{Intent: "Contract  Extension", Count: 1}}},
		{BatchID: "b2", CallIDs: []string{"call-002"}, TopIntents: []types.IssueCount{{Intent: "contract extension", Count: 2}}},
	}
	view, err := Aggregate(rollups, insights)
	require.NoError(t, err)
	require.Len(t, view.TopIntents, 1, "labels merge case- and whitespace-insensitively")
	assert.Equal(t, 3, view.TopIntents[0].Count)
}

func TestAggregateConsistencyViolation(t *testing.T) {
	insights := insightFixtures(1)
	rollups := []types.BatchRollup{{
		BatchID: "b1",
		CallIDs: []string{"call-001", "call-missing"},
	}}
	_, err := Aggregate(rollups, insights)
	assert.ErrorIs(t, err, ErrConsistency, "missing insight halts the run")
}

func TestAggregateEmptyInput(t *testing.T) {
	view, err := Aggregate(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, view.TopIntents)
	assert.Empty(t, view.FAQCandidates)
}

func TestLoadRollupsAndInsights(t *testing.T) {
	dir := t.TempDir()
	rollupsDir := filepath.Join(dir, "rollups")
	insightsDir := filepath.Join(dir, "insights")

	insights := insightFixtures(3)
	for id, ins := range insights {
		require.NoError(t, store.WriteJSON(filepath.Join(insightsDir, id+".json"), ins))
	}
	for _, rollup := range rollupsFor(insights, 2) {
		require.NoError(t, store.WriteJSON(filepath.Join(rollupsDir, "batch_"+rollup.BatchID+".json"), rollup))
	}

	loadedRollups, err := LoadRollups(rollupsDir)
	require.NoError(t, err)
	assert.Len(t, loadedRollups, 2)

	loadedInsights, err := LoadInsights(insightsDir)
	require.NoError(t, err)
	assert.Len(t, loadedInsights, 3)

	ordered, err := ListInsights(insightsDir)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "call-001", ordered[0].CallID)
	assert.Equal(t, "call-003", ordered[2].CallID)

	view, err := Aggregate(loadedRollups, loadedInsights)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TopIntents[0].Count)
}
