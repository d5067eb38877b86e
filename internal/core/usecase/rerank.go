package usecase

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okulov/polyqa/internal/core/domain"
)

const rerankCacheSize = 4096

// rerankStage rescores each evidence set's fused candidates with the
// external relevance model and keeps the top-K. Scores are cached
// across queries keyed by (query text, chunk id). If the model is
// unavailable the fusion ordering stands in, marked degraded;
// candidate provenance is preserved either way.
type rerankStage struct {
	cfg   PipelineConfig
	cache *lru.Cache[string, float64]
}

func newRerankStage(cfg PipelineConfig) *rerankStage {
	cache, _ := lru.New[string, float64](rerankCacheSize)
	return &rerankStage{cfg: cfg, cache: cache}
}

func (s *rerankStage) Name() string { return "reranker" }

func (s *rerankStage) Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	topK := s.cfg.RerankTopK
	if st.Query.TopK > 0 {
		topK = st.Query.TopK
	}

	degraded := false
	kept := 0
	for i := range st.Evidence {
		ev := &st.Evidence[i]
		if len(ev.Candidates) == 0 {
			continue
		}

		fellBack, err := s.scoreSet(ctx, caps, ev)
		if err != nil {
			return StageResult{}, err
		}
		if fellBack {
			degraded = true
			ev.Degraded = true
		}

		sortCandidates(ev.Candidates, func(c domain.Candidate) float64 { return c.RerankScore })
		if len(ev.Candidates) > topK {
			ev.Candidates = ev.Candidates[:topK]
		}
		for rank := range ev.Candidates {
			ev.Candidates[rank].Rank = rank + 1
		}
		kept += len(ev.Candidates)
	}

	return StageResult{
		Summary:  fmt.Sprintf("kept top %d per sub-query, %d total", topK, kept),
		Degraded: degraded,
	}, nil
}

// scoreSet fills RerankScore for every candidate. Returns true when it
// fell back to fusion-stage ordering.
func (s *rerankStage) scoreSet(ctx context.Context, caps *capabilitySet, ev *domain.EvidenceSet) (bool, error) {
	missing := make([]int, 0, len(ev.Candidates))
	passages := make([]string, 0, len(ev.Candidates))
	for i, cand := range ev.Candidates {
		if score, ok := s.cache.Get(rerankCacheKey(ev.SubQuery.Text, cand.ChunkID)); ok {
			ev.Candidates[i].RerankScore = score
			continue
		}
		missing = append(missing, i)
		passages = append(passages, cand.Text)
	}

	if len(missing) > 0 {
		scores, err := caps.rerankScores(ctx, ev.SubQuery.Text, passages)
		if err != nil {
			if domain.IsKind(err, domain.ErrBudgetExceeded) || ctx.Err() != nil {
				return false, err
			}
			for i := range ev.Candidates {
				ev.Candidates[i].RerankScore = ev.Candidates[i].FusedScore
			}
			return true, nil
		}
		for n, i := range missing {
			ev.Candidates[i].RerankScore = scores[n]
			s.cache.Add(rerankCacheKey(ev.SubQuery.Text, ev.Candidates[i].ChunkID), scores[n])
		}
	}
	return false, nil
}

// rerankCacheKey length-prefixes the query text so two distinct pairs
// can never concatenate to the same key.
func rerankCacheKey(queryText, chunkID string) string {
	return fmt.Sprintf("%d:%s%s", len(queryText), queryText, chunkID)
}
