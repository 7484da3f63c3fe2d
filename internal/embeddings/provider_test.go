package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echograph/internal/config"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.5, -0.3, 0.8, 0.1}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	v := []float32{0.5, -0.3, 0.8, 0.1}
	neg := make([]float32, len(v))
	for i := range v {
		neg[i] = -v[i]
	}
	assert.InDelta(t, 0.0, CosineSimilarity(v, neg), 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.5, CosineSimilarity(a, b), 1e-6)
}

func TestCosineSimilarityZeroNormGuard(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}

	assert.Equal(t, 0.0, CosineSimilarity(zero, v))
	assert.Equal(t, 0.0, CosineSimilarity(v, zero))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
}

func newTestLocalProvider(t *testing.T, handler http.HandlerFunc) *LocalProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewLocalProvider(&config.Config{
		LocalEmbeddingsURL: srv.URL,
		EmbeddingDim:       3,
		EmbeddingBatchSize: 2,
	})
}

func TestLocalProviderEmbedBlankReturnsZeroVector(t *testing.T) {
	p := newTestLocalProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("encoder must not be called for blank input")
	})

	v, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestLocalProviderEmbedBatchPreservesOrder(t *testing.T) {
	p := newTestLocalProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Encode each input to a vector keyed by its length so the test can
		// verify positions.
		out := make([][]float32, len(req.Inputs))
		for i, s := range req.Inputs {
			out[i] = []float32{float32(len(s)), 0, 0}
		}
		json.NewEncoder(w).Encode(out)
	})

	texts := []string{"a", "", "ccc", "dddd", "ee"}
	vectors, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	assert.Equal(t, []float32{1, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 0, 0}, vectors[1]) // blank input
	assert.Equal(t, []float32{3, 0, 0}, vectors[2])
	assert.Equal(t, []float32{4, 0, 0}, vectors[3])
	assert.Equal(t, []float32{2, 0, 0}, vectors[4])
}

func TestLocalProviderRejectsWrongDimension(t *testing.T) {
	p := newTestLocalProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2}})
	})

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestLocalProviderSurfacesServerError(t *testing.T) {
	p := newTestLocalProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
