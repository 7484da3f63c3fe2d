package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"echograph/internal/config"
)

// LocalProvider talks to a local dense-transformer inference server exposing
// the text-embeddings-inference wire format: POST /embed with
// {"inputs": [...]} returning a [][]float32 matrix.
type LocalProvider struct {
	httpClient *http.Client
	baseURL    string
	dim        int
	batchSize  int
}

func NewLocalProvider(cfg *config.Config) *LocalProvider {
	batchSize := cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	return &LocalProvider{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    cfg.LocalEmbeddingsURL,
		dim:        cfg.EmbeddingDim,
		batchSize:  batchSize,
	}
}

func (p *LocalProvider) Dim() int { return p.dim }

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if isBlank(text) {
		return zeroVector(p.dim), nil
	}

	vectors, err := p.encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Blank inputs embed to the zero vector without a round trip; everything
	// else goes to the encoder in configured batch sizes, order preserved.
	var pending []string
	var pendingIdx []int
	for i, t := range texts {
		if isBlank(t) {
			out[i] = zeroVector(p.dim)
			continue
		}
		pending = append(pending, t)
		pendingIdx = append(pendingIdx, i)
	}

	for start := 0; start < len(pending); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}

		vectors, err := p.encode(ctx, pending[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		for j, v := range vectors {
			out[pendingIdx[start+j]] = v
		}
	}

	return out, nil
}

func (p *LocalProvider) encode(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"inputs": inputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed request failed with status %d: %s", resp.StatusCode, string(msg))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d inputs", len(vectors), len(inputs))
	}
	for _, v := range vectors {
		if len(v) != p.dim {
			return nil, fmt.Errorf("encoder returned dimension %d, expected %d", len(v), p.dim)
		}
	}

	return vectors, nil
}

// IsHealthy checks whether the encoder answers on its health endpoint.
func (p *LocalProvider) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
