package embedding

import (
	"context"
	"crypto/md5"
)

// Mock is the offline generator used with USE_MOCK_LLM=true. Vectors are
// derived from a hash of the text, so identical questions embed identically
// and runs are deterministic. Similarities are meaningless beyond exact
// matches; it exists for smoke runs, not quality.
type Mock struct {
	Dim int
}

func (m *Mock) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	dim := m.Dim
	if dim <= 0 {
		dim = 32
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, dim)
		seed := md5.Sum([]byte(text))
		for k := 0; k < dim; k++ {
			// Bytes cycle through the digest; offset keeps components apart.
			v[k] = float64(seed[(k*7)%len(seed)])/255.0 + 0.01
		}
		out[i] = v
	}
	return out, nil
}
