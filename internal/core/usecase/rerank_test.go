package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/okulov/polyqa/internal/core/domain"
)

func rerankCaps(rr *rerankFake, budget domain.Budget) *capabilitySet {
	return &capabilitySet{
		reranker: rr,
		ledger:   newLedger(budget),
		cfg:      DefaultPipelineConfig(),
	}
}

func TestRerankStageOrdersAndTruncates(t *testing.T) {
	rr := &rerankFake{scores: map[string]float64{
		"low": 0.1, "mid": 0.5, "high": 0.9,
	}}
	cfg := DefaultPipelineConfig()
	cfg.RerankTopK = 2
	stage := newRerankStage(cfg)

	sq := domain.SubQuery{Text: "query"}
	st := &domain.PipelineState{
		Evidence: singleEvidence(sq,
			domain.Candidate{ChunkID: "c1", Text: "low", FusedScore: 0.9},
			domain.Candidate{ChunkID: "c2", Text: "high", FusedScore: 0.1},
			domain.Candidate{ChunkID: "c3", Text: "mid", FusedScore: 0.5},
		),
	}

	res, err := stage.Run(context.Background(), rerankCaps(rr, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Fatal("successful rerank is not degraded")
	}

	cands := st.Evidence[0].Candidates
	if len(cands) != 2 {
		t.Fatalf("expected top 2 kept, got %d", len(cands))
	}
	if cands[0].ChunkID != "c2" || cands[1].ChunkID != "c3" {
		t.Fatalf("rerank order wrong: %s, %s", cands[0].ChunkID, cands[1].ChunkID)
	}
	if cands[0].Rank != 1 || cands[1].Rank != 2 {
		t.Fatalf("ranks not assigned: %d, %d", cands[0].Rank, cands[1].Rank)
	}
}

func TestRerankStageQueryTopKOverride(t *testing.T) {
	rr := &rerankFake{scores: map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7}}
	stage := newRerankStage(DefaultPipelineConfig())

	sq := domain.SubQuery{Text: "query"}
	st := &domain.PipelineState{
		Query: domain.Query{TopK: 1},
		Evidence: singleEvidence(sq,
			domain.Candidate{ChunkID: "c1", Text: "a"},
			domain.Candidate{ChunkID: "c2", Text: "b"},
			domain.Candidate{ChunkID: "c3", Text: "c"},
		),
	}

	if _, err := stage.Run(context.Background(), rerankCaps(rr, domain.Budget{}), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(st.Evidence[0].Candidates); got != 1 {
		t.Fatalf("per-query top_k=1 ignored, kept %d", got)
	}
}

func TestRerankStageFallsBackToFusionOrder(t *testing.T) {
	rr := &rerankFake{err: errors.New("model offline")}
	stage := newRerankStage(DefaultPipelineConfig())

	sq := domain.SubQuery{Text: "query"}
	st := &domain.PipelineState{
		Evidence: singleEvidence(sq,
			domain.Candidate{ChunkID: "c1", Text: "a", FusedScore: 0.3},
			domain.Candidate{ChunkID: "c2", Text: "b", FusedScore: 0.8},
		),
	}

	res, err := stage.Run(context.Background(), rerankCaps(rr, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("rerank failure must degrade, not error: %v", err)
	}
	if !res.Degraded || !st.Evidence[0].Degraded {
		t.Fatal("fusion fallback must be marked degraded")
	}
	cands := st.Evidence[0].Candidates
	if cands[0].ChunkID != "c2" {
		t.Fatalf("fallback should keep fusion order, got %s first", cands[0].ChunkID)
	}
	if cands[0].RerankScore != cands[0].FusedScore {
		t.Fatalf("fallback score = %f, want fused %f", cands[0].RerankScore, cands[0].FusedScore)
	}
}

func TestRerankStageCachesScoresAcrossQueries(t *testing.T) {
	rr := &rerankFake{scores: map[string]float64{"text": 0.7}}
	stage := newRerankStage(DefaultPipelineConfig())

	sq := domain.SubQuery{Text: "query"}
	run := func() {
		st := &domain.PipelineState{
			Evidence: singleEvidence(sq, domain.Candidate{ChunkID: "c1", Text: "text"}),
		}
		if _, err := stage.Run(context.Background(), rerankCaps(rr, domain.Budget{}), st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Evidence[0].Candidates[0].RerankScore != 0.7 {
			t.Fatalf("score = %f, want 0.7", st.Evidence[0].Candidates[0].RerankScore)
		}
	}

	run()
	run()
	if rr.calls != 1 {
		t.Fatalf("second identical (query, chunk) pair should hit the cache, got %d model calls", rr.calls)
	}
}

func TestRerankStageCacheKeysOnFullPair(t *testing.T) {
	rr := &rerankFake{scores: map[string]float64{"text": 0.7}}
	stage := newRerankStage(DefaultPipelineConfig())

	score := func(queryText string) float64 {
		st := &domain.PipelineState{
			Evidence: singleEvidence(domain.SubQuery{Text: queryText},
				domain.Candidate{ChunkID: "c1", Text: "text"}),
		}
		if _, err := stage.Run(context.Background(), rerankCaps(rr, domain.Budget{}), st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return st.Evidence[0].Candidates[0].RerankScore
	}

	score("first query")
	rr.scores["text"] = 0.2
	if got := score("second query"); got != 0.2 {
		t.Fatalf("different query for the same chunk served a cached score %f", got)
	}
	if rr.calls != 2 {
		t.Fatalf("each (query, chunk) pair needs its own model call, got %d", rr.calls)
	}
	if key := rerankCacheKey("a", "b\x00c"); key == rerankCacheKey("a\x00b", "c") {
		t.Fatal("distinct pairs must map to distinct cache keys")
	}
}

func TestRerankStageBudgetErrorPropagates(t *testing.T) {
	rr := &rerankFake{scores: map[string]float64{"a": 0.5}}
	stage := newRerankStage(DefaultPipelineConfig())

	sq := domain.SubQuery{Text: "query"}
	st := &domain.PipelineState{
		Evidence: singleEvidence(sq, domain.Candidate{ChunkID: "c1", Text: "a"}),
	}

	caps := rerankCaps(rr, domain.Budget{MaxInvocations: 1})
	if err := caps.ledger.chargeInvocation(); err != nil {
		t.Fatalf("first charge: %v", err)
	}

	_, err := stage.Run(context.Background(), caps, st)
	if !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
}
