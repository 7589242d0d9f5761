package types

// QAPair is one verbatim question/answer exchange inside a call.
type QAPair struct {
	Question        string `json:"q"`
	Answer          string `json:"a"`
	QuestionSpeaker string `json:"question_speaker,omitempty"`
	AnswerSpeaker   string `json:"answer_speaker,omitempty"`
}

// Resolution status values for a CallInsight.
const (
	ResolutionResolved = "resolved"
	ResolutionPartial  = "partially_resolved"
	ResolutionUnsolved = "unresolved"
)

// CallInsight is the per-call extraction produced by the analysis stage.
// Immutable on disk except through ledger-driven correction propagation.
type CallInsight struct {
	CallID        string       `json:"call_id"`
	MainIssue     string       `json:"main_issue"`
	ClientIntent  string       `json:"client_intent"`
	Subtopics     []string     `json:"subtopics,omitempty"`
	AgentActions  []string     `json:"agent_actions,omitempty"`
	RequiredData  []string     `json:"required_data,omitempty"`
	Resolution    string       `json:"resolution_status"`
	HandoffNote   string       `json:"handoff_note,omitempty"`
	ClientEmotion string       `json:"client_emotion,omitempty"`
	AgentEmotion  string       `json:"agent_emotion,omitempty"`
	QualityFlags  []string     `json:"quality_flags,omitempty"`
	VerbatimPairs []QAPair     `json:"verbatim_qa_pairs,omitempty"`
	FAQCandidate  FAQCandidate `json:"faq_candidate"`
}

// FAQCandidate is a canonical question/answer proposed for the knowledge
// base, carrying back-references to the calls it came from.
type FAQCandidate struct {
	CandidateID   string   `json:"candidate_id"`
	Question      string   `json:"canonical_q"`
	Answer        string   `json:"canonical_a"`
	SourceCallIDs []string `json:"source_call_ids,omitempty"`
}

// IssueCount is one row of an intent frequency table.
type IssueCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

// BatchRollup is the within-batch dedup produced by one LLM call over a
// contiguous group of insights. Derived; regenerable by batch id.
type BatchRollup struct {
	BatchID       string         `json:"batch_id"`
	CallIDs       []string       `json:"call_ids"`
	TopIntents    []IssueCount   `json:"top_intents"`
	FAQCandidates []FAQCandidate `json:"faq_candidates"`
}

// GlobalView is the single merged rollup across all batches, rebuilt from
// scratch on every aggregation run.
type GlobalView struct {
	TopIntents          []IssueCount   `json:"top_intents"`
	FAQCandidates       []FAQCandidate `json:"faq_candidates"`
	QualityFlagCounts   map[string]int `json:"quality_flag_counts"`
	ClientEmotionCounts map[string]int `json:"client_emotion_counts"`
}

// ClusterMember records one candidate absorbed into a cluster and its
// cosine similarity to the centroid at absorption time.
type ClusterMember struct {
	CandidateID string  `json:"candidate_id"`
	Similarity  float64 `json:"similarity"`
}

// FAQCluster is a set of semantically equivalent FAQ candidates.
type FAQCluster struct {
	ClusterID     string          `json:"cluster_id"`
	Members       []ClusterMember `json:"members"`
	Question      string          `json:"canonical_q"`
	Answer        string          `json:"canonical_a"`
	SourceCallIDs []string        `json:"source_call_ids"`
	PendingReview bool            `json:"pending_review"`
}

// KBEntry is the final knowledge-base record, one per cluster. The yaml
// tags keep the YAML form of the KB aligned with the JSON one.
type KBEntry struct {
	EntryID        string   `json:"entry_id" yaml:"entry_id"`
	Question       string   `json:"canonical_question" yaml:"canonical_question"`
	Answer         string   `json:"best_answer" yaml:"best_answer"`
	SourceCallIDs  []string `json:"source_call_ids" yaml:"source_call_ids"`
	PendingReview  bool     `json:"pending_review" yaml:"pending_review"`
	LastReviewedAt string   `json:"last_reviewed_at,omitempty" yaml:"last_reviewed_at,omitempty"`
	ReviewComment  string   `json:"review_comment,omitempty" yaml:"review_comment,omitempty"`
}

// Correction ledger record types.
const (
	CorrectionTypeCorrected = "corrected"
	CorrectionTypeConfirmed = "confirmed"
	CorrectionTypeUndo      = "undo"
)

// RowSnapshot preserves one flat-export row before a correction touched it.
type RowSnapshot struct {
	CallID      string `json:"call_id"`
	PairIndex   int    `json:"pair_index"`
	PrevAnswer  string `json:"previous_answer"`
	NeedsReview bool   `json:"needs_review"`
	ReviewNotes string `json:"review_notes,omitempty"`
}

// Correction is one append-only ledger record of a human edit.
type Correction struct {
	CorrectionID string        `json:"correction_id"`
	Type         string        `json:"type"`
	EntryID      string        `json:"entry_id"`
	PrevAnswer   string        `json:"previous_answer,omitempty"`
	NewAnswer    string        `json:"new_answer,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Timestamp    string        `json:"timestamp"`
	Reversible   bool          `json:"reversible"`
	PrevRows     []RowSnapshot `json:"previous_rows,omitempty"`
	// UndoneID references the reverted correction on type=undo records.
	UndoneID string `json:"undone_correction_id,omitempty"`
}

// NLUPair is one row of the flat question/answer export.
type NLUPair struct {
	CallID       string   `json:"call_id"`
	PairIndex    int      `json:"pair_index"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	QuestionFrom string   `json:"question_speaker"`
	AnswerFrom   string   `json:"answer_speaker"`
	Intent       string   `json:"intent,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	QualityFlags []string `json:"quality_flags,omitempty"`
	EntryID      string   `json:"entry_id,omitempty"`
	NeedsReview  bool     `json:"needs_review"`
	ReviewNotes  string   `json:"review_notes,omitempty"`
}
