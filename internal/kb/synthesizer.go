package kb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"call-kb-go/internal/llm"
	"call-kb-go/internal/types"
)

// ErrConsistency means a cluster references a candidate that no longer
// exists in the GlobalView: the stages ran out of order. Fatal.
var ErrConsistency = errors.New("consistency violation")

const synthesisPrompt = `You are a call-center knowledge-base editor. The cluster below groups
semantically equivalent customer questions whose recorded answers disagree.
Write ONE best-practice answer that covers the question correctly.

Return ONLY a JSON object: {"best_answer": string}.

Canonical question: %s

Member answers:
%s`

// Synthesizer converts deduplicated clusters into final KB entries. The
// language model is consulted only when a cluster's member answers disagree;
// otherwise the canonical answer passes through unchanged, which keeps
// re-runs on an unchanged cluster set byte-identical.
type Synthesizer struct {
	completer llm.Completer
	log       *logrus.Entry
}

func NewSynthesizer(completer llm.Completer, log *logrus.Entry) *Synthesizer {
	return &Synthesizer{completer: completer, log: log}
}

// Build produces one KBEntry per cluster. candidates is the GlobalView pool
// keyed by candidate id; existing is the current KB file (may be empty) and
// is reused entry-for-entry when the cluster membership is unchanged, so
// rebuilds are idempotent and never clobber reviewed answers.
func (s *Synthesizer) Build(ctx context.Context, clusters []types.FAQCluster, candidates map[string]types.FAQCandidate, existing []types.KBEntry) ([]types.KBEntry, error) {
	prior := make(map[string]types.KBEntry, len(existing))
	for _, entry := range existing {
		prior[entry.EntryID] = entry
	}

	ordered := append([]types.FAQCluster(nil), clusters...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if len(a.SourceCallIDs) != len(b.SourceCallIDs) {
			return len(a.SourceCallIDs) > len(b.SourceCallIDs)
		}
		return a.ClusterID < b.ClusterID
	})

	entries := make([]types.KBEntry, 0, len(ordered))
	for _, cluster := range ordered {
		if len(cluster.SourceCallIDs) == 0 {
			return nil, fmt.Errorf("%w: cluster %s has no source calls", ErrConsistency, cluster.ClusterID)
		}
		memberAnswers, err := resolveMembers(cluster, candidates)
		if err != nil {
			return nil, err
		}
		if entry, ok := prior[cluster.ClusterID]; ok {
			entries = append(entries, entry)
			continue
		}
		answer := cluster.Answer
		if conflicting(cluster.Answer, memberAnswers) {
			answer, err = s.synthesize(ctx, cluster.Question, memberAnswers)
			if err != nil {
				return nil, fmt.Errorf("cluster %s: %w", cluster.ClusterID, err)
			}
		}
		entries = append(entries, types.KBEntry{
			EntryID:       cluster.ClusterID,
			Question:      cluster.Question,
			Answer:        answer,
			SourceCallIDs: cluster.SourceCallIDs,
			PendingReview: cluster.PendingReview,
		})
	}
	return entries, nil
}

func resolveMembers(cluster types.FAQCluster, candidates map[string]types.FAQCandidate) ([]string, error) {
	answers := make([]string, 0, len(cluster.Members))
	for _, member := range cluster.Members {
		cand, ok := candidates[member.CandidateID]
		if !ok {
			return nil, fmt.Errorf("%w: cluster %s references missing candidate %s", ErrConsistency, cluster.ClusterID, member.CandidateID)
		}
		answers = append(answers, cand.Answer)
	}
	return answers, nil
}

// conflicting reports whether any member answer diverges from the canonical
// one after normalization.
func conflicting(canonical string, memberAnswers []string) bool {
	key := types.NormalizeKey(canonical)
	for _, answer := range memberAnswers {
		if types.NormalizeKey(answer) != key {
			return true
		}
	}
	return false
}

type synthesisResponse struct {
	BestAnswer string `json:"best_answer"`
}

func (s *Synthesizer) synthesize(ctx context.Context, question string, memberAnswers []string) (string, error) {
	list := ""
	for i, answer := range memberAnswers {
		list += fmt.Sprintf("%d. %s\n", i+1, answer)
	}
	content, err := s.completer.Complete(ctx, fmt.Sprintf(synthesisPrompt, question, list))
	if err != nil {
		return "", err
	}
	var parsed synthesisResponse
	if err := llm.DecodeStrict(content, &parsed); err != nil {
		return "", err
	}
	if types.Normalize(parsed.BestAnswer) == "" {
		return "", fmt.Errorf("%w: empty best_answer", llm.ErrMalformedOutput)
	}
	s.log.WithField("question", question).Info("synthesized merged answer")
	return types.Normalize(parsed.BestAnswer), nil
}
