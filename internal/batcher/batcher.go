package batcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"call-kb-go/internal/llm"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

const rollupPrompt = `You are a call-center insights analyst. Below is a JSON array of per-call
insight cards. Deduplicate issues and FAQ candidates WITHIN THIS BATCH ONLY.

Return ONLY a JSON object with keys:
top_intents: array of {"intent": string, "count": int} summed over the batch,
faq_candidates: array of {"canonical_q": string, "canonical_a": string,
"source_call_ids": array of call ids from this batch that back the entry}.

Do not invent call ids. Merge near-identical questions into one candidate.

Input cards:
` + "```json\n%s\n```"

// Batcher groups per-call insights into contiguous fixed-size batches and
// produces one BatchRollup per batch through the language model.
type Batcher struct {
	completer llm.Completer
	workers   int
	log       *logrus.Entry
}

func New(completer llm.Completer, workers int, log *logrus.Entry) *Batcher {
	if workers < 1 {
		workers = 1
	}
	return &Batcher{completer: completer, workers: workers, log: log}
}

// Partition splits insights into contiguous batches of at most size records,
// preserving input order. size <= 0 yields a single batch.
func Partition(insights []types.CallInsight, size int) [][]types.CallInsight {
	if len(insights) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]types.CallInsight{insights}
	}
	var out [][]types.CallInsight
	for i := 0; i < len(insights); i += size {
		end := i + size
		if end > len(insights) {
			end = len(insights)
		}
		out = append(out, insights[i:end])
	}
	return out
}

// BatchID derives the stable batch identifier from the member call ids, so
// re-runs overwrite the same rollup file instead of appending a new one.
func BatchID(callIDs []string) string {
	sum := md5.Sum([]byte(strings.Join(callIDs, ",")))
	return hex.EncodeToString(sum[:])[:12]
}

// CandidateID derives a stable candidate identifier within a batch.
func CandidateID(batchID, question string) string {
	sum := md5.Sum([]byte(batchID + "|" + types.NormalizeKey(question)))
	return hex.EncodeToString(sum[:])[:12]
}

// Result summarizes one rollup run: attempted/succeeded/failed batch ids,
// reported in batch order regardless of worker completion order.
type Result struct {
	Attempted int
	Succeeded []string
	Failed    []string
}

// Run rolls every batch up and writes rollups/batch_<id>.json per batch.
// Failed batches are skipped, not retried; their ids are surfaced in the
// result so the stage can be re-run for just those inputs. Each rollup file
// is written only after its batch fully completes, so interrupting between
// batches never corrupts already-written records.
func (b *Batcher) Run(ctx context.Context, insights []types.CallInsight, batchSize int, outDir string) (Result, error) {
	unlock, err := store.Lock(outDir)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	batches := Partition(insights, batchSize)
	res := Result{Attempted: len(batches)}
	if len(batches) == 0 {
		return res, nil
	}

	sem := semaphore.NewWeighted(int64(b.workers))
	var mu sync.Mutex
	failed := make(map[string]bool)
	var wg sync.WaitGroup

	for _, batch := range batches {
		callIDs := make([]string, len(batch))
		for i, ins := range batch {
			callIDs[i] = ins.CallID
		}
		batchID := BatchID(callIDs)
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled between batch boundaries: stop scheduling new work.
			mu.Lock()
			failed[batchID] = true
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(batch []types.CallInsight, batchID string, callIDs []string) {
			defer wg.Done()
			defer sem.Release(1)
			log := b.log.WithField("batch_id", batchID)
			rollup, err := b.rollupBatch(ctx, batch, batchID, callIDs)
			if err != nil {
				log.WithField("error", err.Error()).Warn("batch rollup failed, skipping")
				mu.Lock()
				failed[batchID] = true
				mu.Unlock()
				return
			}
			path := filepath.Join(outDir, fmt.Sprintf("batch_%s.json", batchID))
			if err := store.WriteJSON(path, rollup); err != nil {
				log.WithField("error", err.Error()).Warn("rollup write failed")
				mu.Lock()
				failed[batchID] = true
				mu.Unlock()
				return
			}
			log.WithField("candidates", len(rollup.FAQCandidates)).Info("rollup written")
		}(batch, batchID, callIDs)
	}
	wg.Wait()

	// Summaries keep batch (input) order, never completion order.
	for _, batch := range batches {
		ids := make([]string, len(batch))
		for i, ins := range batch {
			ids[i] = ins.CallID
		}
		id := BatchID(ids)
		if failed[id] {
			res.Failed = append(res.Failed, id)
		} else {
			res.Succeeded = append(res.Succeeded, id)
		}
	}
	return res, nil
}

// rollupResponse is the schema the model must return for one batch.
type rollupResponse struct {
	TopIntents    []types.IssueCount `json:"top_intents"`
	FAQCandidates []rollupCandidate  `json:"faq_candidates"`
}

type rollupCandidate struct {
	Question      string   `json:"canonical_q"`
	Answer        string   `json:"canonical_a"`
	SourceCallIDs []string `json:"source_call_ids"`
}

func (b *Batcher) rollupBatch(ctx context.Context, batch []types.CallInsight, batchID string, callIDs []string) (types.BatchRollup, error) {
	cards, err := json.Marshal(batch)
	if err != nil {
		return types.BatchRollup{}, fmt.Errorf("marshal batch: %w", err)
	}
	content, err := b.completer.Complete(ctx, fmt.Sprintf(rollupPrompt, string(cards)))
	if err != nil {
		return types.BatchRollup{}, err
	}
	var parsed rollupResponse
	if err := llm.DecodeStrict(content, &parsed); err != nil {
		return types.BatchRollup{}, err
	}
	return buildRollup(parsed, batchID, callIDs)
}

// buildRollup validates the model output against the batch membership and
// assigns stable candidate ids. Any violation fails the whole batch.
func buildRollup(parsed rollupResponse, batchID string, callIDs []string) (types.BatchRollup, error) {
	members := make(map[string]bool, len(callIDs))
	for _, id := range callIDs {
		members[id] = true
	}
	rollup := types.BatchRollup{BatchID: batchID, CallIDs: callIDs}
	for _, ic := range parsed.TopIntents {
		if types.Normalize(ic.Intent) == "" || ic.Count <= 0 {
			return types.BatchRollup{}, fmt.Errorf("%w: bad intent row %+v", llm.ErrMalformedOutput, ic)
		}
		rollup.TopIntents = append(rollup.TopIntents, types.IssueCount{
			Intent: types.Normalize(ic.Intent),
			Count:  ic.Count,
		})
	}
	for _, cand := range parsed.FAQCandidates {
		q := types.Normalize(cand.Question)
		if q == "" {
			return types.BatchRollup{}, fmt.Errorf("%w: candidate with empty question", llm.ErrMalformedOutput)
		}
		if len(cand.SourceCallIDs) == 0 {
			return types.BatchRollup{}, fmt.Errorf("%w: candidate %q has no source calls", llm.ErrMalformedOutput, q)
		}
		sources := append([]string(nil), cand.SourceCallIDs...)
		sort.Strings(sources)
		for _, id := range sources {
			if !members[id] {
				return types.BatchRollup{}, fmt.Errorf("%w: candidate %q references call %q outside the batch", llm.ErrMalformedOutput, q, id)
			}
		}
		rollup.FAQCandidates = append(rollup.FAQCandidates, types.FAQCandidate{
			CandidateID:   CandidateID(batchID, q),
			Question:      q,
			Answer:        types.Normalize(cand.Answer),
			SourceCallIDs: sources,
		})
	}
	return rollup, nil
}
