package dedup

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-kb-go/internal/logger"
	"call-kb-go/internal/types"
)

// unit returns a 2D unit vector whose cosine similarity to (1,0) is c.
func unit(c float64) []float64 {
	return []float64{c, math.Sqrt(1 - c*c)}
}

func cand(id, q, a string, sources []string, vec []float64) Candidate {
	return Candidate{
		FAQCandidate: types.FAQCandidate{
			CandidateID:   id,
			Question:      q,
			Answer:        a,
			SourceCallIDs: sources,
		},
		Vector: vec,
	}
}

func TestClusterNearDuplicates(t *testing.T) {
	// Two paraphrases of the contract-extension question and one unrelated
	// question about vehicle returns.
	candidates := []Candidate{
		cand("c1", "Как продлить договор?", "Свяжитесь с менеджером.", []string{"call-1", "call-2"}, unit(1.0)),
		cand("c2", "Как мне продлить договор лизинга?", "Напишите менеджеру.", []string{"call-3"}, unit(0.92)),
		cand("c3", "Какая процедура возврата автомобиля?", "Подайте заявку на возврат.", []string{"call-4"}, unit(0.30)),
	}

	clusters := Cluster(candidates, 0.85)
	require.Len(t, clusters, 2)

	merged := clusters[0]
	require.Len(t, merged.Members, 2)
	assert.Equal(t, "c1", merged.Members[0].CandidateID)
	assert.Equal(t, "c2", merged.Members[1].CandidateID)
	assert.True(t, merged.PendingReview, "multi-member cluster needs review")
	assert.Equal(t, "Как продлить договор?", merged.Question)
	assert.Equal(t, []string{"call-1", "call-2", "call-3"}, merged.SourceCallIDs)
	assert.InDelta(t, 0.92, merged.Members[1].Similarity, 1e-9)

	single := clusters[1]
	require.Len(t, single.Members, 1)
	assert.False(t, single.PendingReview, "nothing to disambiguate in a singleton")
	assert.Equal(t, "Какая процедура возврата автомобиля?", single.Question)
}

func TestClusterThresholdExtremes(t *testing.T) {
	candidates := []Candidate{
		cand("c1", "q1", "a1", []string{"call-1"}, unit(1.0)),
		cand("c2", "q2", "a2", []string{"call-2"}, unit(0.99)),
		cand("c3", "q3", "a3", []string{"call-3"}, unit(0.50)),
	}

	// Exact-match threshold never merges distinct non-identical vectors.
	strict := Cluster(candidates, 1.0)
	assert.Len(t, strict, 3)
	for _, cluster := range strict {
		assert.False(t, cluster.PendingReview)
	}

	// Zero threshold collapses everything into one cluster.
	loose := Cluster(candidates, 0.0)
	require.Len(t, loose, 1)
	assert.Len(t, loose[0].Members, 3)
}

func TestClusterPartitionProperty(t *testing.T) {
	var candidates []Candidate
	ids := []string{"a", "b", "c", "d", "e", "f"}
	sims := []float64{1.0, 0.95, 0.9, 0.6, 0.55, 0.2}
	for i, id := range ids {
		candidates = append(candidates, cand(id, "q-"+id, "a-"+id, []string{"call-" + id}, unit(sims[i])))
	}

	clusters := Cluster(candidates, 0.85)
	seen := map[string]int{}
	for _, cluster := range clusters {
		for _, member := range cluster.Members {
			seen[member.CandidateID]++
		}
	}
	require.Len(t, seen, len(candidates), "every candidate clustered")
	for id, n := range seen {
		assert.Equal(t, 1, n, "candidate %s appears exactly once", id)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	clusters := Cluster(nil, 0.85)
	assert.Empty(t, clusters)
}

func TestClusterCanonicalSelection(t *testing.T) {
	// Same contributing-call counts: the longer answer wins.
	candidates := []Candidate{
		cand("c1", "short q", "short", []string{"call-1"}, unit(1.0)),
		cand("c2", "longer q", "a much more complete answer", []string{"call-2"}, unit(0.99)),
	}
	clusters := Cluster(candidates, 0.9)
	require.Len(t, clusters, 1)
	assert.Equal(t, "a much more complete answer", clusters[0].Answer)

	// Higher contributing-call count beats answer length.
	candidates[0].SourceCallIDs = []string{"call-1", "call-3"}
	clusters = Cluster(candidates, 0.9)
	require.Len(t, clusters, 1)
	assert.Equal(t, "short", clusters[0].Answer)
}

func TestClusterDeterministicIDs(t *testing.T) {
	candidates := []Candidate{
		cand("c1", "q1", "a1", []string{"call-1"}, unit(1.0)),
		cand("c2", "q2", "a2", []string{"call-2"}, unit(0.95)),
	}
	first := Cluster(candidates, 0.9)
	second := Cluster(candidates, 0.9)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ClusterID, second[0].ClusterID)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 0}, []float64{2, 0}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float64{1, 0}, []float64{1}), "dimension mismatch is degenerate")
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestRunEmbedsInInputOrder(t *testing.T) {
	candidates := []types.FAQCandidate{
		{CandidateID: "c1", Question: "Как продлить договор?", Answer: "a1", SourceCallIDs: []string{"call-1"}},
		{CandidateID: "c2", Question: "Как продлить договор?", Answer: "a2", SourceCallIDs: []string{"call-2"}},
		{CandidateID: "c3", Question: "совсем другой вопрос", Answer: "a3", SourceCallIDs: []string{"call-3"}},
	}
	gen := &fixedGenerator{vectors: map[string][]float64{
		"как продлить договор?": unit(1.0),
		"совсем другой вопрос":  unit(0.1),
	}}
	d := New(gen, 2, logger.New().WithStage("dedup-test"))
	clusters, err := d.Run(context.Background(), candidates, 0.85)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Len(t, clusters[0].Members, 2, "identical questions embed identically and merge")
}

func TestRunEmptyInput(t *testing.T) {
	d := New(&fixedGenerator{}, 1, logger.New().WithStage("dedup-test"))
	clusters, err := d.Run(context.Background(), nil, 0.85)
	require.NoError(t, err)
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

type fixedGenerator struct {
	vectors map[string][]float64
}

func (g *fixedGenerator) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := g.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = unit(0.5)
		}
	}
	return out, nil
}
