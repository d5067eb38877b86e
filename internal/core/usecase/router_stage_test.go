package usecase

import (
	"context"
	"testing"

	"github.com/okulov/polyqa/internal/core/domain"
)

func TestRouterStageEmptyQuery(t *testing.T) {
	stage := &routerStage{detector: &detectorFake{}, cfg: DefaultPipelineConfig()}
	st := &domain.PipelineState{Query: domain.Query{Text: "   "}}

	_, err := stage.Run(context.Background(), nil, st)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input error, got %v", err)
	}
}

func TestRouterStageDetectsLanguage(t *testing.T) {
	stage := &routerStage{
		detector: &detectorFake{language: "hi", confidence: 0.97},
		cfg:      DefaultPipelineConfig(),
	}
	st := &domain.PipelineState{Query: domain.Query{Text: "भारत की राजधानी क्या है"}}

	res, err := stage.Run(context.Background(), nil, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Fatal("confident detection must not degrade")
	}
	if st.Query.Language != "hi" {
		t.Fatalf("language = %s, want hi", st.Query.Language)
	}
	if st.LanguageConfidence != 0.97 {
		t.Fatalf("confidence = %f, want 0.97", st.LanguageConfidence)
	}
}

func TestRouterStageLowConfidenceFallsBack(t *testing.T) {
	stage := &routerStage{
		detector: &detectorFake{language: "fr", confidence: 0.2},
		cfg:      DefaultPipelineConfig(),
	}
	st := &domain.PipelineState{Query: domain.Query{Text: "ambiguous text"}}

	res, err := stage.Run(context.Background(), nil, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("fallback to default language must degrade")
	}
	if st.Query.Language != "en" {
		t.Fatalf("language = %s, want default en", st.Query.Language)
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		text string
		want domain.Intent
	}{
		{"What is the capital of France?", domain.IntentFactual},
		{"PostgreSQL vs MySQL for analytics workloads", domain.IntentComparison},
		{"What is the difference between TCP and UDP?", domain.IntentComparison},
		{"Summarize the quarterly report", domain.IntentSummarization},
		{"Give me an overview of the architecture", domain.IntentSummarization},
		{"List all endpoints exposed by the service", domain.IntentExtraction},
		{"What is the revenue of the company that created the framework?", domain.IntentMultiHop},
		{"Why did the deployment fail last night?", domain.IntentAnalysis},
		{"Explain why the cache misses spiked", domain.IntentAnalysis},
		{"hello there, what can you do", domain.IntentOutOfScope},
		{"Thank you for the help", domain.IntentOutOfScope},
		{"What is the hi-tech sector outlook?", domain.IntentFactual},
	}

	for _, tc := range cases {
		if got := classifyIntent(tc.text); got != tc.want {
			t.Errorf("classifyIntent(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}
