package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-kb-go/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(config.Config{
		EmbeddingURL:    server.URL,
		EmbeddingAPIKey: "test-key",
		EmbeddingModel:  "test-embed",
	})
	require.NoError(t, err)
	return client
}

func TestEmbedOrdersByResponseIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Len(t, req.Input, 2)

		// Data arrives out of order; the index field is authoritative.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1}},
				{"index": 0, "embedding": []float64{1, 0}},
			},
		})
	})

	vectors, err := client.Embed(context.Background(), []string{"первый", "второй"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1}, vectors[1])
}

func TestEmbedCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float64{1}}},
		})
	})

	_, err := client.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "mismatch")
}

func TestEmbedRejectsEmptyVector(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{1}},
				{"index": 0, "embedding": []float64{2}},
			},
		})
	})

	// Duplicate indices leave a slot unfilled.
	_, err := client.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := client.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "404")
}

func TestEmbedEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})
	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(config.Config{})
	assert.Error(t, err)
}

func TestMockDeterministic(t *testing.T) {
	m := &Mock{Dim: 8}
	a, err := m.Embed(context.Background(), []string{"вопрос", "вопрос", "другой"})
	require.NoError(t, err)
	require.Len(t, a, 3)
	assert.Equal(t, a[0], a[1], "identical text embeds identically")
	assert.NotEqual(t, a[0], a[2])
	assert.Len(t, a[0], 8)
}
