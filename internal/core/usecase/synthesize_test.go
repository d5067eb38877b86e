package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

func TestSynthesizeStageDraftsWithCitations(t *testing.T) {
	gen := &generatorFake{replies: map[ports.Role][]string{
		ports.RoleSynthesizer: {"Paris is the capital of France."},
	}}
	stage := &synthesizeStage{cfg: DefaultPipelineConfig()}
	sq := domain.SubQuery{Text: "capital of France"}
	st := &domain.PipelineState{
		Query: domain.Query{Text: "What is the capital of France?", Language: "en"},
		Evidence: singleEvidence(sq,
			domain.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "Paris is the capital of France."},
			domain.Candidate{ChunkID: "c2", DocumentID: "d2", Text: "France is in Europe."},
		),
		Claims: []domain.Claim{
			{Text: "Paris is the capital of France", Support: []string{"c1", "c2", "c1"}},
		},
		AnalysisConfidence: 0.7,
	}

	res, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Fatal("successful synthesis is not degraded")
	}
	if st.Draft == nil {
		t.Fatal("draft not set")
	}
	if st.Draft.Text != "Paris is the capital of France." {
		t.Fatalf("draft text = %q", st.Draft.Text)
	}
	if len(st.Draft.Citations) != 2 {
		t.Fatalf("expected 2 deduplicated citations, got %d", len(st.Draft.Citations))
	}
	first := st.Draft.Citations[0]
	if first.ChunkID != "c1" || first.DocumentID != "d1" || first.Quote == "" {
		t.Fatalf("unexpected first citation: %+v", first)
	}
}

func TestSynthesizeStageNoClaimsHonestDraft(t *testing.T) {
	gen := &generatorFake{}
	stage := &synthesizeStage{cfg: DefaultPipelineConfig()}
	st := &domain.PipelineState{Query: domain.Query{Text: "q", Language: "en"}}

	res, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("no claims, no generation; got %d calls", gen.calls)
	}
	if !res.Degraded || st.Draft == nil || !st.Draft.Degraded {
		t.Fatal("insufficient-evidence draft must be degraded")
	}
	if st.Draft.Confidence != 0 || len(st.Draft.Citations) != 0 {
		t.Fatalf("unexpected draft: %+v", st.Draft)
	}
	if !strings.Contains(st.Draft.Text, "not contain enough evidence") {
		t.Fatalf("draft should state the evidence gap, got %q", st.Draft.Text)
	}
}

func TestSynthesizeStageGenerationFailureFallsBackToClaims(t *testing.T) {
	gen := &generatorFake{errs: map[ports.Role]error{
		ports.RoleSynthesizer: errors.New("model offline"),
	}}
	stage := &synthesizeStage{cfg: DefaultPipelineConfig()}
	sq := domain.SubQuery{Text: "q"}
	st := &domain.PipelineState{
		Query: domain.Query{Text: "q", Language: "en"},
		Evidence: singleEvidence(sq,
			domain.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "evidence text"},
		),
		Claims: []domain.Claim{
			{Text: "First fact.", Support: []string{"c1"}},
			{Text: "Second fact", Support: []string{"c1"}},
		},
		AnalysisConfidence: 0.6,
	}

	res, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("fallback must degrade, not error: %v", err)
	}
	if !res.Degraded || !st.Draft.Degraded {
		t.Fatal("claim-join fallback must be marked degraded")
	}
	if st.Draft.Text != "First fact. Second fact." {
		t.Fatalf("joined text = %q", st.Draft.Text)
	}
	if len(st.Draft.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(st.Draft.Citations))
	}
}

func TestSynthesizeStageCitationQuoteTruncated(t *testing.T) {
	longText := strings.Repeat("я", 500)
	gen := &generatorFake{replies: map[ports.Role][]string{
		ports.RoleSynthesizer: {"answer"},
	}}
	stage := &synthesizeStage{cfg: DefaultPipelineConfig()}
	sq := domain.SubQuery{Text: "q"}
	st := &domain.PipelineState{
		Query:    domain.Query{Text: "q", Language: "ru"},
		Evidence: singleEvidence(sq, domain.Candidate{ChunkID: "c1", DocumentID: "d1", Text: longText}),
		Claims:   []domain.Claim{{Text: "x", Support: []string{"c1"}}},
	}

	if _, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	quote := st.Draft.Citations[0].Quote
	if got := len([]rune(quote)); got != citationQuoteLimit {
		t.Fatalf("quote length = %d runes, want %d", got, citationQuoteLimit)
	}
}
