package pairs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

func writeInsights(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	insights := []types.CallInsight{
		{
			CallID:       "call-1",
			ClientIntent: "contract extension",
			Subtopics:    []string{"leasing", "contract extension", "  "},
			QualityFlags: []string{"long_hold"},
			VerbatimPairs: []types.QAPair{
				{Question: "Как продлить договор?", Answer: "Свяжитесь с менеджером."},
				{Question: "  ", Answer: ""},
				{Question: "А по телефону можно?", Answer: "Да, по горячей линии.", QuestionSpeaker: "client", AnswerSpeaker: "supervisor"},
			},
		},
		{
			CallID:       "call-2",
			ClientIntent: "vehicle return",
			VerbatimPairs: []types.QAPair{
				{Question: "Как вернуть машину?", Answer: "Подайте заявку."},
			},
		},
	}
	for _, ins := range insights {
		require.NoError(t, store.WriteJSON(filepath.Join(dir, ins.CallID+".json"), ins))
	}
	return dir
}

func TestExportRows(t *testing.T) {
	dir := writeInsights(t)
	entries := []types.KBEntry{
		{EntryID: "entry-ext", SourceCallIDs: []string{"call-1"}},
	}

	rows, err := Export(dir, entries)
	require.NoError(t, err)
	require.Len(t, rows, 3, "empty pair dropped")

	first := rows[0]
	assert.Equal(t, "call-1", first.CallID)
	assert.Equal(t, 1, first.PairIndex)
	assert.Equal(t, "client", first.QuestionFrom, "speaker defaults filled in")
	assert.Equal(t, "agent", first.AnswerFrom)
	assert.Equal(t, "entry-ext", first.EntryID)
	assert.Equal(t, []string{"contract extension", "leasing"}, first.Hashtags)
	assert.Equal(t, []string{"long_hold"}, first.QualityFlags)

	// The dropped middle pair does not shift indices of later pairs.
	assert.Equal(t, 3, rows[1].PairIndex)
	assert.Equal(t, "supervisor", rows[1].AnswerFrom)

	// call-2 belongs to no KB entry.
	assert.Equal(t, "", rows[2].EntryID)
	assert.Equal(t, "call-2", rows[2].CallID)
}

func TestHashtags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Hashtags("a", []string{"b", "a", "", " b"}))
	assert.Nil(t, Hashtags("", nil))
}

func TestJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nlu_pairs.jsonl")
	rows := []types.NLUPair{
		{CallID: "call-1", PairIndex: 1, Question: "q1", Answer: "a1", EntryID: "e1"},
		{CallID: "call-1", PairIndex: 2, Question: "q2", Answer: "a2", EntryID: "e1", NeedsReview: true, ReviewNotes: "check"},
		{CallID: "call-2", PairIndex: 1, Question: "q3", Answer: "a3", EntryID: "e2"},
	}
	require.NoError(t, WriteJSONL(path, rows))

	got, err := ReadJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	missing, err := ReadJSONL(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRederiveTouchesOnlyMatchingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nlu_pairs.jsonl")
	rows := []types.NLUPair{
		{CallID: "call-1", PairIndex: 1, Answer: "a1", EntryID: "e1", NeedsReview: true, ReviewNotes: "old"},
		{CallID: "call-2", PairIndex: 1, Answer: "a2", EntryID: "e2"},
	}
	require.NoError(t, WriteJSONL(path, rows))

	snaps, err := Snapshot(path, "e1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "a1", snaps[0].PrevAnswer)
	assert.True(t, snaps[0].NeedsReview)

	changed, err := Rederive(path, "e1", "corrected", "note")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err := ReadJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, "corrected", got[0].Answer)
	assert.False(t, got[0].NeedsReview)
	assert.Equal(t, "note", got[0].ReviewNotes)
	assert.Equal(t, "a2", got[1].Answer, "other entries untouched")

	// Re-applying the same correction is a no-op.
	changed, err = Rederive(path, "e1", "corrected", "note")
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	require.NoError(t, Restore(path, snaps))
	got, err = ReadJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, "a1", got[0].Answer)
	assert.True(t, got[0].NeedsReview)
	assert.Equal(t, "old", got[0].ReviewNotes)
}

func TestRestoreEmptySnapshots(t *testing.T) {
	assert.NoError(t, Restore(filepath.Join(t.TempDir(), "absent.jsonl"), nil))
}
