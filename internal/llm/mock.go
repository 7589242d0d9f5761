package llm

import "context"

// Mock is the offline completer enabled with USE_MOCK_LLM=true. It replies
// with a fixed completion per call, in request order, and is deterministic
// so demo runs and idempotence checks behave the same every time.
type Mock struct {
	Replies []string
	next    int
	// Err, when set, fails every call. Used to exercise failed-unit paths.
	Err error
}

func (m *Mock) Complete(ctx context.Context, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "{}", nil
	}
	reply := m.Replies[m.next%len(m.Replies)]
	m.next++
	return reply, nil
}
