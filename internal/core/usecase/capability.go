package usecase

import (
	"context"
	"fmt"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// capabilitySet wraps the external capability ports with per-call
// timeouts and ledger charging. One set is built per query so every
// charge lands on that query's ledger.
type capabilitySet struct {
	generator ports.Generator
	vector    ports.VectorSearcher
	keyword   ports.KeywordSearcher
	reranker  ports.RerankScorer
	fetcher   ports.ChunkFetcher

	ledger *ledger
	cfg    PipelineConfig
}

func (c *capabilitySet) generate(ctx context.Context, prompt string, role ports.Role) (string, error) {
	if err := c.ledger.chargeInvocation(); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()

	gen, err := c.generator.Generate(callCtx, prompt, role)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", role, err)
	}

	tokens := gen.Usage.Total()
	if tokens == 0 {
		tokens = countTokens(prompt) + countTokens(gen.Text)
	}
	if err := c.ledger.chargeTokens(tokens); err != nil {
		return gen.Text, err
	}
	return gen.Text, nil
}

func (c *capabilitySet) searchVector(ctx context.Context, sq domain.SubQuery, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error) {
	if err := c.ledger.chargeInvocation(); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	refs, err := c.vector.SearchVector(callCtx, sq.Text, sq.Language, filter, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return refs, nil
}

func (c *capabilitySet) searchKeyword(ctx context.Context, sq domain.SubQuery, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error) {
	if err := c.ledger.chargeInvocation(); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	refs, err := c.keyword.SearchKeyword(callCtx, sq.Text, sq.Language, filter, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return refs, nil
}

func (c *capabilitySet) rerankScores(ctx context.Context, queryText string, passages []string) ([]float64, error) {
	if err := c.ledger.chargeInvocation(); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RerankTimeout)
	defer cancel()

	scores, err := c.reranker.ScoreBatch(callCtx, queryText, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank scores: %w", err)
	}
	if len(scores) != len(passages) {
		return nil, fmt.Errorf("rerank scores: got %d scores for %d passages", len(scores), len(passages))
	}
	return scores, nil
}

// fetchChunkText resolves candidate text when a search hit carried no
// payload. Not charged as an invocation: it is document-store plumbing,
// not a reasoning or index suspension point.
func (c *capabilitySet) fetchChunkText(ctx context.Context, chunkID string) (string, error) {
	if c.fetcher == nil {
		return "", nil
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()
	return c.fetcher.FetchChunkText(callCtx, chunkID)
}
