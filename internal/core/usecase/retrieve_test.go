package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/okulov/polyqa/internal/core/domain"
)

func retrieveState(subQueries ...string) *domain.PipelineState {
	st := &domain.PipelineState{
		Query: domain.Query{Text: subQueries[0], Language: "en"},
	}
	for _, text := range subQueries {
		st.Plan.SubQueries = append(st.Plan.SubQueries, domain.SubQuery{
			Text: text, Language: "en", Origin: domain.OriginPlanner,
		})
	}
	return st
}

func retrieveCaps(vec *vectorSearchFake, kw *keywordSearchFake, fetch *fetcherFake, budget domain.Budget) *capabilitySet {
	return &capabilitySet{
		vector:  vec,
		keyword: kw,
		fetcher: fetch,
		ledger:  newLedger(budget),
		cfg:     DefaultPipelineConfig(),
	}
}

func TestRetrieveStageCommitsInPlanOrder(t *testing.T) {
	vec := &vectorSearchFake{hits: map[string][]domain.ScoredRef{
		"first":  {{ChunkID: "c1", DocumentID: "d1", Score: 0.9, Text: "first text"}},
		"second": {{ChunkID: "c2", DocumentID: "d1", Score: 0.8, Text: "second text"}},
	}}
	kw := &keywordSearchFake{hits: map[string][]domain.ScoredRef{}}
	stage := &retrieveStage{cfg: DefaultPipelineConfig()}
	st := retrieveState("first", "second")

	res, err := stage.Run(context.Background(), retrieveCaps(vec, kw, nil, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Evidence) != 2 {
		t.Fatalf("expected 2 evidence sets, got %d", len(st.Evidence))
	}
	if st.Evidence[0].SubQuery.Text != "first" || st.Evidence[1].SubQuery.Text != "second" {
		t.Fatalf("evidence out of plan order: %s, %s", st.Evidence[0].SubQuery.Text, st.Evidence[1].SubQuery.Text)
	}
	if st.Evidence[0].Candidates[0].ChunkID != "c1" {
		t.Fatalf("wrong candidate for first sub-query: %s", st.Evidence[0].Candidates[0].ChunkID)
	}
	if res.Degraded {
		t.Fatal("keyword misses are not a degradation; both searches succeeded")
	}
}

func TestRetrieveStageOneModalityFailureDegrades(t *testing.T) {
	vec := &vectorSearchFake{hits: map[string][]domain.ScoredRef{
		"q": {{ChunkID: "c1", DocumentID: "d1", Score: 0.9, Text: "vector hit"}},
	}}
	kw := &keywordSearchFake{err: errors.New("index down")}
	stage := &retrieveStage{cfg: DefaultPipelineConfig()}
	st := retrieveState("q")

	res, err := stage.Run(context.Background(), retrieveCaps(vec, kw, nil, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("single modality failure must degrade, not error: %v", err)
	}
	if !res.Degraded || !st.Evidence[0].Degraded {
		t.Fatal("surviving-modality retrieval must be marked degraded")
	}
	if len(st.Evidence[0].Candidates) != 1 || st.Evidence[0].Candidates[0].ChunkID != "c1" {
		t.Fatalf("expected the vector hit to survive, got %+v", st.Evidence[0].Candidates)
	}
}

func TestRetrieveStageBothModalitiesFailEmptyDegraded(t *testing.T) {
	vec := &vectorSearchFake{err: errors.New("vector down")}
	kw := &keywordSearchFake{err: errors.New("keyword down")}
	stage := &retrieveStage{cfg: DefaultPipelineConfig()}
	st := retrieveState("q")

	res, err := stage.Run(context.Background(), retrieveCaps(vec, kw, nil, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("retrieval collapse must degrade, not error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("empty evidence must be degraded")
	}
	if len(st.Evidence[0].Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(st.Evidence[0].Candidates))
	}
}

func TestRetrieveStageBudgetExhaustionHalts(t *testing.T) {
	vec := &vectorSearchFake{hits: map[string][]domain.ScoredRef{}}
	kw := &keywordSearchFake{hits: map[string][]domain.ScoredRef{}}
	stage := &retrieveStage{cfg: DefaultPipelineConfig()}
	st := retrieveState("q")

	// One invocation left; the two concurrent searches need two.
	caps := retrieveCaps(vec, kw, nil, domain.Budget{MaxInvocations: 1})

	_, err := stage.Run(context.Background(), caps, st)
	if !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
}

func TestRetrieveStageResolvesMissingText(t *testing.T) {
	vec := &vectorSearchFake{hits: map[string][]domain.ScoredRef{
		"q": {{ChunkID: "c1", DocumentID: "d1", Score: 0.9}}, // no payload text
	}}
	kw := &keywordSearchFake{hits: map[string][]domain.ScoredRef{}}
	fetch := &fetcherFake{texts: map[string]string{"c1": "fetched chunk text"}}
	stage := &retrieveStage{cfg: DefaultPipelineConfig()}
	st := retrieveState("q")

	if _, err := stage.Run(context.Background(), retrieveCaps(vec, kw, fetch, domain.Budget{}), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.Evidence[0].Candidates[0].Text; got != "fetched chunk text" {
		t.Fatalf("candidate text = %q, want fetched text", got)
	}
}
