package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// routerStage classifies the query's language and intent. It is a pure
// function of the query text plus the language-ID capability: no model
// calls, and never a hard failure beyond an empty query.
type routerStage struct {
	detector ports.LanguageDetector
	cfg      PipelineConfig
}

func (s *routerStage) Name() string { return "router" }

func (s *routerStage) Run(_ context.Context, _ *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	text := strings.TrimSpace(st.Query.Text)
	if text == "" {
		return StageResult{}, domain.WrapError(domain.ErrInvalidInput, "route query", errors.New("empty query"))
	}

	lang, confidence := s.detector.Detect(text)
	degraded := false
	if lang == "" || confidence < s.cfg.LanguageThreshold {
		lang = s.cfg.DefaultLanguage
		degraded = true
	}
	st.Query.Language = lang
	st.LanguageConfidence = confidence
	st.Intent = classifyIntent(text)

	return StageResult{
		Summary:  fmt.Sprintf("language=%s confidence=%.2f intent=%s", lang, confidence, st.Intent),
		Degraded: degraded,
	}, nil
}

var intentMarkers = []struct {
	intent  domain.Intent
	markers []string
}{
	{domain.IntentOutOfScope, []string{" hello ", " hi ", " hey ", "how are you", "thank you", " thanks ", "good morning", "good evening", "who are you", "what can you do", "tell me a joke"}},
	{domain.IntentComparison, []string{" vs ", " versus ", "compare", "difference between", "better than", "which is better"}},
	{domain.IntentSummarization, []string{"summarize", "summarise", "summary of", "overview of", "tl;dr", "in short"}},
	{domain.IntentExtraction, []string{"list all", "list the", "extract", "enumerate", "what are all"}},
	{domain.IntentMultiHop, []string{"of the company that", "of the person who", "who founded the", "that created", "which then"}},
	{domain.IntentAnalysis, []string{"why did", "why does", "why is", "analyze", "analyse", "explain why", "what caused"}},
}

// classifyIntent maps query text onto the fixed intent taxonomy.
// Greetings and smalltalk route to out_of_scope, which still flows a
// single sub-query through the pipeline and resolves to an honest
// no-evidence answer when the corpus has nothing to offer. Anything
// unmatched is treated as a direct factual question.
func classifyIntent(text string) domain.Intent {
	lowered := " " + strings.ToLower(text) + " "
	for _, entry := range intentMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(lowered, marker) {
				return entry.intent
			}
		}
	}
	return domain.IntentFactual
}
