package embeddings

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"echograph/internal/config"
)

// GeminiProvider embeds via the Google Generative AI hosted API
// (text-embedding-004 by default).
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dim       int
	batchSize int
}

func NewGeminiProvider(ctx context.Context, cfg *config.Config) (*GeminiProvider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	batchSize := cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	return &GeminiProvider{
		client:    client,
		model:     cfg.GoogleEmbeddingsModel,
		dim:       cfg.EmbeddingDim,
		batchSize: batchSize,
	}, nil
}

func (p *GeminiProvider) Dim() int { return p.dim }

func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if isBlank(text) {
		return zeroVector(p.dim), nil
	}

	em := p.client.EmbeddingModel(p.model)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embed content failed: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}

	return resp.Embedding.Values, nil
}

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	em := p.client.EmbeddingModel(p.model)

	var pendingIdx []int
	for i, t := range texts {
		if isBlank(t) {
			out[i] = zeroVector(p.dim)
			continue
		}
		pendingIdx = append(pendingIdx, i)
	}

	for start := 0; start < len(pendingIdx); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pendingIdx) {
			end = len(pendingIdx)
		}

		batch := em.NewBatch()
		for _, idx := range pendingIdx[start:end] {
			batch.AddContent(genai.Text(texts[idx]))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch embed failed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("batch embed returned %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}

		for j, e := range resp.Embeddings {
			out[pendingIdx[start+j]] = e.Values
		}
	}

	return out, nil
}
