package usecase

import (
	"context"
	"sync"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// Shared fakes for the pipeline stage and orchestrator tests.

type generatorFake struct {
	mu      sync.Mutex
	replies map[ports.Role][]string
	errs    map[ports.Role]error
	usage   ports.Usage

	calls   int
	roles   []ports.Role
	prompts []string
}

func (f *generatorFake) Generate(_ context.Context, prompt string, role ports.Role) (ports.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.roles = append(f.roles, role)
	f.prompts = append(f.prompts, prompt)

	if err := f.errs[role]; err != nil {
		return ports.Generation{}, err
	}
	queue := f.replies[role]
	if len(queue) == 0 {
		return ports.Generation{Text: "{}", Usage: f.usage}, nil
	}
	reply := queue[0]
	f.replies[role] = queue[1:]
	return ports.Generation{Text: reply, Usage: f.usage}, nil
}

type vectorSearchFake struct {
	mu    sync.Mutex
	hits  map[string][]domain.ScoredRef
	err   error
	calls int

	lastLanguage string
	lastFilter   domain.SearchFilter
	lastK        int
}

func (f *vectorSearchFake) SearchVector(_ context.Context, queryText, language string, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastLanguage = language
	f.lastFilter = filter
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[queryText], nil
}

type keywordSearchFake struct {
	mu    sync.Mutex
	hits  map[string][]domain.ScoredRef
	err   error
	calls int
}

func (f *keywordSearchFake) SearchKeyword(_ context.Context, queryText, _ string, _ domain.SearchFilter, _ int) ([]domain.ScoredRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[queryText], nil
}

type rerankFake struct {
	mu     sync.Mutex
	scores map[string]float64
	err    error
	calls  int
}

func (f *rerankFake) ScoreBatch(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(passages))
	for i, passage := range passages {
		out[i] = f.scores[passage]
	}
	return out, nil
}

type fetcherFake struct {
	texts map[string]string
	err   error
}

func (f *fetcherFake) FetchChunkText(_ context.Context, chunkID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[chunkID], nil
}

func testCaps(gen ports.Generator, budget domain.Budget) *capabilitySet {
	return &capabilitySet{
		generator: gen,
		ledger:    newLedger(budget),
		cfg:       DefaultPipelineConfig(),
	}
}

func singleEvidence(sq domain.SubQuery, cands ...domain.Candidate) []domain.EvidenceSet {
	return []domain.EvidenceSet{{SubQuery: sq, Candidates: cands}}
}
