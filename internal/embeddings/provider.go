package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"

	"echograph/internal/config"
)

// Provider produces fixed-dimension dense vectors for text. Implementations
// are read-only after construction and safe for concurrent use.
type Provider interface {
	// Dim is the constant output dimension of this provider.
	Dim() int
	// Embed encodes one string. Empty or whitespace-only input returns the
	// zero vector.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch encodes texts in order, batching internally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider selects the embedding backend from configuration.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.EmbeddingsProvider {
	case "local", "":
		return NewLocalProvider(cfg), nil
	case "google":
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

// CosineSimilarity returns (a·b / (‖a‖·‖b‖) + 1) / 2, normalized into [0, 1].
// A zero-norm operand yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

// zeroVector is what blank input embeds to.
func zeroVector(dim int) []float32 {
	return make([]float32, dim)
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
