package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"call-kb-go/internal/embedding"
	"call-kb-go/internal/types"
)

// embedChunkSize bounds how many questions go into one embedding request.
const embedChunkSize = 64

// Candidate is an FAQ candidate paired with its question embedding.
type Candidate struct {
	types.FAQCandidate
	Vector []float64
}

// Deduper collapses the global FAQ candidate pool into canonical clusters
// using embedding similarity.
type Deduper struct {
	generator embedding.Generator
	workers   int
	log       *logrus.Entry
}

func New(generator embedding.Generator, workers int, log *logrus.Entry) *Deduper {
	if workers < 1 {
		workers = 1
	}
	return &Deduper{generator: generator, workers: workers, log: log}
}

// Run embeds every candidate question and clusters near-duplicates.
// Empty input yields an empty cluster set.
func (d *Deduper) Run(ctx context.Context, candidates []types.FAQCandidate, threshold float64) ([]types.FAQCluster, error) {
	if len(candidates) == 0 {
		return []types.FAQCluster{}, nil
	}
	texts := make([]string, len(candidates))
	for i, cand := range candidates {
		texts[i] = types.NormalizeKey(cand.Question)
	}
	vectors, err := d.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}
	withVectors := make([]Candidate, len(candidates))
	for i, cand := range candidates {
		withVectors[i] = Candidate{FAQCandidate: cand, Vector: vectors[i]}
	}
	clusters := Cluster(withVectors, threshold)
	d.log.WithField("candidates", len(candidates)).WithField("clusters", len(clusters)).Info("dedup complete")
	return clusters, nil
}

// embedAll chunks the inputs and issues bounded concurrent embedding calls.
// Vectors land at their input index, so ordering never depends on which
// chunk finishes first.
func (d *Deduper) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	sem := semaphore.NewWeighted(int64(d.workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(texts); start += embedChunkSize {
		end := start + embedChunkSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			defer sem.Release(1)
			chunk, err := d.generator.Embed(ctx, texts[start:end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("embed chunk %d-%d: %w", start, end, err)
				}
				mu.Unlock()
				return
			}
			copy(vectors[start:end], chunk)
		}(start, end)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// Cluster runs greedy online clustering. Candidates are visited in a fixed
// deterministic order (descending contributing-call count, ties by candidate
// id); each unclustered candidate seeds a cluster that absorbs every
// remaining unclustered candidate whose cosine similarity to the running
// centroid reaches the threshold. The centroid is updated with an online
// mean after each absorption. Clustering is order-dependent, so this visit
// order is part of the contract.
func Cluster(candidates []Candidate, threshold float64) []types.FAQCluster {
	ordered := append([]Candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if len(a.SourceCallIDs) != len(b.SourceCallIDs) {
			return len(a.SourceCallIDs) > len(b.SourceCallIDs)
		}
		return a.CandidateID < b.CandidateID
	})

	clustered := make([]bool, len(ordered))
	clusters := make([]types.FAQCluster, 0, len(ordered))
	for i := range ordered {
		if clustered[i] {
			continue
		}
		clustered[i] = true
		group := []Candidate{ordered[i]}
		sims := []float64{1.0}
		centroid := append([]float64(nil), ordered[i].Vector...)
		for j := i + 1; j < len(ordered); j++ {
			if clustered[j] {
				continue
			}
			sim := Cosine(ordered[j].Vector, centroid)
			if sim >= threshold {
				clustered[j] = true
				group = append(group, ordered[j])
				sims = append(sims, sim)
				updateMean(centroid, ordered[j].Vector, len(group))
			}
		}
		clusters = append(clusters, buildCluster(group, sims))
	}
	return clusters
}

// updateMean folds v into the running mean of n vectors in place.
func updateMean(mean, v []float64, n int) {
	for k := range mean {
		mean[k] += (v[k] - mean[k]) / float64(n)
	}
}

// Cosine returns the cosine similarity of a and b, 0 for degenerate input.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// buildCluster picks the canonical entry and assembles the cluster record.
// Canonical selection: highest contributing-call count, ties broken by
// longest answer, then smallest candidate id so the choice is total.
// Only multi-member clusters are flagged for review.
func buildCluster(group []Candidate, sims []float64) types.FAQCluster {
	canonical := group[0]
	for _, cand := range group[1:] {
		if betterCanonical(cand, canonical) {
			canonical = cand
		}
	}

	memberIDs := make([]string, len(group))
	members := make([]types.ClusterMember, len(group))
	sourceSet := map[string]bool{}
	for i, cand := range group {
		memberIDs[i] = cand.CandidateID
		members[i] = types.ClusterMember{CandidateID: cand.CandidateID, Similarity: sims[i]}
		for _, id := range cand.SourceCallIDs {
			sourceSet[id] = true
		}
	}
	sources := make([]string, 0, len(sourceSet))
	for id := range sourceSet {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	idInput := append([]string(nil), memberIDs...)
	sort.Strings(idInput)
	sum := md5.Sum([]byte(strings.Join(idInput, ",")))

	return types.FAQCluster{
		ClusterID:     hex.EncodeToString(sum[:])[:12],
		Members:       members,
		Question:      canonical.Question,
		Answer:        canonical.Answer,
		SourceCallIDs: sources,
		PendingReview: len(group) > 1,
	}
}

func betterCanonical(a, b Candidate) bool {
	if len(a.SourceCallIDs) != len(b.SourceCallIDs) {
		return len(a.SourceCallIDs) > len(b.SourceCallIDs)
	}
	if len(a.Answer) != len(b.Answer) {
		return len(a.Answer) > len(b.Answer)
	}
	return a.CandidateID < b.CandidateID
}
