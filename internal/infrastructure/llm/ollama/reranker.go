package ollama

import (
	"context"
	"fmt"
	"math"
)

// Reranker scores passages by embedding cosine similarity against the
// query, mapped into [0,1]. One embedding request covers the query and
// the whole batch.
type Reranker struct {
	embedder *Embedder
}

func NewReranker(client *Client) *Reranker {
	return &Reranker{embedder: NewEmbedder(client)}
}

func (r *Reranker) ScoreBatch(ctx context.Context, queryText string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(passages)+1)
	inputs = append(inputs, queryText)
	inputs = append(inputs, passages...)

	vectors, err := r.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("rerank embed: %w", err)
	}

	queryVec := vectors[0]
	scores := make([]float64, len(passages))
	for i, vec := range vectors[1:] {
		scores[i] = (cosineSimilarity(queryVec, vec) + 1) / 2
	}
	return scores, nil
}

func cosineSimilarity(a, b []float32) float64 {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
