package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

func validationState() *domain.PipelineState {
	sq := domain.SubQuery{Text: "capital of France"}
	return &domain.PipelineState{
		Query: domain.Query{Text: "What is the capital of France?", Language: "en"},
		Evidence: singleEvidence(sq,
			domain.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "Paris is the capital of France."},
		),
		Claims: []domain.Claim{{Text: "Paris is the capital of France", Support: []string{"c1"}}},
		Draft: &domain.Answer{
			Text:      "Paris is the capital city of France today.",
			Citations: []domain.Citation{{DocumentID: "d1", ChunkID: "c1", Quote: "Paris is the capital of France."}},
		},
	}
}

func TestValidateStagePass(t *testing.T) {
	gen := &generatorFake{replies: map[ports.Role][]string{
		ports.RoleValidator: {`{"supported":true,"confidence":0.9,"unsupported_spans":[]}`},
	}}
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := validationState()

	res, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Fatal("model-backed pass is not degraded")
	}
	if st.Verdict == nil || !st.Verdict.Pass {
		t.Fatalf("expected passing verdict, got %+v", st.Verdict)
	}
	if st.Verdict.Confidence != 0.9 {
		t.Fatalf("confidence = %f, want 0.9", st.Verdict.Confidence)
	}
}

func TestValidateStageFailCapsConfidence(t *testing.T) {
	gen := &generatorFake{replies: map[ports.Role][]string{
		ports.RoleValidator: {`{"supported":false,"confidence":0.95,"unsupported_spans":["Paris has ten million residents"]}`},
	}}
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := validationState()

	if _, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Verdict.Pass {
		t.Fatal("expected failing verdict")
	}
	if st.Verdict.Confidence > 0.5 {
		t.Fatalf("failed verdict confidence = %f, must be capped at 0.5", st.Verdict.Confidence)
	}
	if len(st.Verdict.UnsupportedSpans) != 1 {
		t.Fatalf("unsupported spans = %v", st.Verdict.UnsupportedSpans)
	}
}

func TestValidateStageUnknownCitationFails(t *testing.T) {
	gen := &generatorFake{replies: map[ports.Role][]string{
		ports.RoleValidator: {`{"supported":true,"confidence":0.9,"unsupported_spans":[]}`},
	}}
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := validationState()
	st.Draft.Citations = append(st.Draft.Citations, domain.Citation{ChunkID: "never-retrieved"})

	if _, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Verdict.Pass {
		t.Fatal("citation outside retrieved evidence must fail validation")
	}
	if len(st.Verdict.Issues) == 0 {
		t.Fatal("expected an issue naming the bad citation")
	}
}

func TestValidateStageNoClaimsFailsWithQueryAsSpan(t *testing.T) {
	gen := &generatorFake{}
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := validationState()
	st.Claims = nil
	st.Draft.Citations = nil

	res, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("nothing to entail, no model call; got %d", gen.calls)
	}
	if !res.Degraded || st.Verdict.Pass {
		t.Fatal("claimless answer must fail degraded")
	}
	if len(st.Verdict.UnsupportedSpans) != 1 || st.Verdict.UnsupportedSpans[0] != st.Query.Text {
		t.Fatalf("expected the query as the unsupported span, got %v", st.Verdict.UnsupportedSpans)
	}
}

func TestValidateStageModelFailureLexicalFallback(t *testing.T) {
	gen := &generatorFake{errs: map[ports.Role]error{
		ports.RoleValidator: errors.New("model offline"),
	}}
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := validationState()

	res, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st)
	if err != nil {
		t.Fatalf("lexical fallback must degrade, not error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("fallback verdict must be marked degraded")
	}
	// The draft shares most tokens with the cited evidence, so the
	// overlap heuristic passes it.
	if !st.Verdict.Pass {
		t.Fatalf("expected lexical pass, got %+v", st.Verdict)
	}
	if st.Verdict.Confidence != 0.6 {
		t.Fatalf("lexical pass confidence = %f, want 0.6", st.Verdict.Confidence)
	}
}

func TestValidateStageLexicalFallbackFlagsUnsupported(t *testing.T) {
	gen := &generatorFake{errs: map[ports.Role]error{
		ports.RoleValidator: errors.New("model offline"),
	}}
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := validationState()
	st.Draft.Text = "Paris is the capital of France. Quantum entanglement enables superluminal communication networks."

	if _, err := stage.Run(context.Background(), testCaps(gen, domain.Budget{}), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Verdict.Pass {
		t.Fatal("unrelated sentence must fail the overlap check")
	}
	if len(st.Verdict.UnsupportedSpans) != 1 {
		t.Fatalf("expected 1 unsupported span, got %v", st.Verdict.UnsupportedSpans)
	}
}

func TestValidateStageNoDraft(t *testing.T) {
	stage := &validateStage{cfg: DefaultPipelineConfig()}
	st := &domain.PipelineState{}

	_, err := stage.Run(context.Background(), testCaps(&generatorFake{}, domain.Budget{}), st)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input error, got %v", err)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First sentence here. Second one! Third?\nOK.")
	want := []string{"First sentence here.", "Second one!"}
	if len(got) < 2 {
		t.Fatalf("got %v", got)
	}
	for i, sentence := range want {
		if got[i] != sentence {
			t.Fatalf("sentence %d = %q, want %q", i, got[i], sentence)
		}
	}
}

func TestTokenOverlap(t *testing.T) {
	query := tokenSet("Paris is the capital")
	evidence := tokenSet("Paris is the capital of France")
	if got := tokenOverlap(query, evidence); got != 1 {
		t.Fatalf("full containment overlap = %f, want 1", got)
	}
	if got := tokenOverlap(tokenSet("unrelated words"), evidence); got != 0 {
		t.Fatalf("disjoint overlap = %f, want 0", got)
	}
}
