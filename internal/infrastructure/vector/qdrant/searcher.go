package qdrant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// Searcher implements dense and sparse search over the shared
// collection. Dense queries embed the text first; sparse queries use
// the same hashed term encoding the indexer writes.
type Searcher struct {
	client   *Client
	embedder ports.Embedder
}

func NewSearcher(client *Client, embedder ports.Embedder) *Searcher {
	return &Searcher{client: client, embedder: embedder}
}

type searchHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *Searcher) SearchVector(ctx context.Context, queryText, language string, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error) {
	vec, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": vec,
		},
		"limit":        k,
		"with_payload": true,
	}
	return s.search(ctx, reqBody, language, filter, "dense search")
}

func (s *Searcher) SearchKeyword(ctx context.Context, queryText, language string, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        k,
		"with_payload": true,
	}
	return s.search(ctx, reqBody, language, filter, "sparse search")
}

func (s *Searcher) search(ctx context.Context, reqBody map[string]any, language string, filter domain.SearchFilter, operation string) ([]domain.ScoredRef, error) {
	if conditions := buildConditions(language, filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	var response struct {
		Result []searchHit `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.client.baseURL, s.client.collection)
	if err := s.client.do(ctx, http.MethodPost, url, reqBody, &response, operation); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredRef, 0, len(response.Result))
	for _, hit := range response.Result {
		out = append(out, domain.ScoredRef{
			ChunkID:    hit.ID,
			DocumentID: getStringPayload(hit.Payload, "doc_id"),
			Score:      hit.Score,
			Text:       getStringPayload(hit.Payload, "text"),
			Language:   getStringPayload(hit.Payload, "language"),
		})
	}
	return out, nil
}

// FetchChunkText resolves a chunk's payload text by point id.
func (s *Searcher) FetchChunkText(ctx context.Context, chunkID string) (string, error) {
	reqBody := map[string]any{
		"ids":          []string{chunkID},
		"with_payload": true,
	}

	var response struct {
		Result []struct {
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", s.client.baseURL, s.client.collection)
	if err := s.client.do(ctx, http.MethodPost, url, reqBody, &response, "retrieve points"); err != nil {
		return "", err
	}
	if len(response.Result) == 0 {
		return "", domain.WrapError(domain.ErrNotFound, "retrieve points", fmt.Errorf("chunk %s not found", chunkID))
	}
	return getStringPayload(response.Result[0].Payload, "text"), nil
}

func buildConditions(language string, filter domain.SearchFilter) []map[string]any {
	conditions := make([]map[string]any, 0, len(filter)+1)
	if language != "" {
		conditions = append(conditions, matchCondition("language", language))
	}
	for key, value := range filter {
		if key == "" || value == "" {
			continue
		}
		conditions = append(conditions, matchCondition(key, value))
	}
	return conditions
}

func matchCondition(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}
