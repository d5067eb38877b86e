package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// validateStage checks the draft answer against its cited evidence.
// The entailment judgment is delegated to the validator model; when
// that is unavailable a lexical-overlap heuristic stands in. Automated
// checks run regardless: a citation that resolves to no retrieved
// candidate or a cited answer without citations forces a fail.
type validateStage struct {
	cfg PipelineConfig
}

func (s *validateStage) Name() string { return "validator" }

func (s *validateStage) Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	if st.Draft == nil {
		return StageResult{}, domain.WrapError(domain.ErrInvalidInput, "validate answer", fmt.Errorf("no draft to validate"))
	}

	verdict := domain.Verdict{Pass: true, Confidence: 1}

	// Automated checks, independent of any model.
	for _, cit := range st.Draft.Citations {
		if !st.KnownChunk(cit.ChunkID) {
			verdict.Pass = false
			verdict.Issues = append(verdict.Issues, fmt.Sprintf("citation %s does not resolve to retrieved evidence", cit.ChunkID))
		}
	}
	if len(st.Claims) > 0 && len(st.Draft.Citations) == 0 {
		verdict.Pass = false
		verdict.Issues = append(verdict.Issues, "answer carries claims but no citations")
	}
	if len(strings.Fields(st.Draft.Text)) < 5 {
		verdict.Issues = append(verdict.Issues, "answer is very short")
	}

	if len(st.Claims) == 0 {
		// Nothing to entail; fail with the original question as the
		// unsupported span so the retry loop can re-retrieve.
		verdict.Pass = false
		verdict.Confidence = 0.2
		verdict.UnsupportedSpans = []string{st.Query.Text}
		st.Verdict = &verdict
		return StageResult{Summary: "fail: no supported claims", Degraded: true}, nil
	}

	degraded := false
	modelVerdict, err := s.entail(ctx, caps, st)
	if err != nil {
		if domain.IsKind(err, domain.ErrBudgetExceeded) || ctx.Err() != nil {
			return StageResult{}, err
		}
		modelVerdict = s.lexicalVerdict(st)
		degraded = true
	}

	if !modelVerdict.Pass {
		verdict.Pass = false
		verdict.UnsupportedSpans = append(verdict.UnsupportedSpans, modelVerdict.UnsupportedSpans...)
	}
	verdict.Confidence = modelVerdict.Confidence
	if !verdict.Pass && verdict.Confidence > 0.5 {
		verdict.Confidence = 0.5
	}
	st.Verdict = &verdict

	status := "pass"
	if !verdict.Pass {
		status = fmt.Sprintf("fail: %d unsupported spans", len(verdict.UnsupportedSpans))
	}
	return StageResult{
		Summary:  fmt.Sprintf("%s, confidence=%.2f", status, verdict.Confidence),
		Degraded: degraded,
	}, nil
}

func (s *validateStage) entail(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (domain.Verdict, error) {
	raw, err := caps.generate(ctx, buildValidatorPrompt(st), ports.RoleValidator)
	if err != nil {
		return domain.Verdict{}, err
	}

	var parsed struct {
		Supported        bool     `json:"supported"`
		Confidence       float64  `json:"confidence"`
		UnsupportedSpans []string `json:"unsupported_spans"`
	}
	if err := unmarshalModelJSON(raw, &parsed); err != nil {
		return domain.Verdict{}, err
	}

	spans := make([]string, 0, len(parsed.UnsupportedSpans))
	for _, span := range parsed.UnsupportedSpans {
		if span = strings.TrimSpace(span); span != "" {
			spans = append(spans, span)
		}
	}
	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return domain.Verdict{
		Pass:             parsed.Supported && len(spans) == 0,
		Confidence:       confidence,
		UnsupportedSpans: spans,
	}, nil
}

// lexicalVerdict is the model-free fallback: each answer sentence must
// share enough tokens with the cited evidence to count as supported.
func (s *validateStage) lexicalVerdict(st *domain.PipelineState) domain.Verdict {
	evidenceTokens := make(map[string]struct{})
	for _, cit := range st.Draft.Citations {
		if cand, ok := lookupCandidate(st.Evidence, cit.ChunkID); ok {
			for token := range tokenSet(cand.Text) {
				evidenceTokens[token] = struct{}{}
			}
		}
	}

	var spans []string
	for _, sentence := range splitSentences(st.Draft.Text) {
		if tokenOverlap(tokenSet(sentence), evidenceTokens) < s.cfg.OverlapThreshold {
			spans = append(spans, sentence)
		}
	}

	confidence := 0.6
	if len(spans) > 0 {
		confidence = 0.4
	}
	return domain.Verdict{
		Pass:             len(spans) == 0,
		Confidence:       confidence,
		UnsupportedSpans: spans,
	}
}

func buildValidatorPrompt(st *domain.PipelineState) string {
	var b strings.Builder
	for _, cit := range st.Draft.Citations {
		if cand, ok := lookupCandidate(st.Evidence, cit.ChunkID); ok {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", cand.ChunkID, cand.Text)
		}
	}

	return fmt.Sprintf(`You verify that an answer is fully supported by its cited evidence.
Check every statement of the answer against the evidence below.
Return ONLY a valid JSON object with this schema:
{"supported":true|false,"confidence":0.0-1.0,"unsupported_spans":["..."]}
List in unsupported_spans the exact answer statements the evidence does not back.

Answer:
%s

Evidence:
%s`, st.Draft.Text, b.String())
}

func splitSentences(text string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(b.String()); s != "" && len(strings.Fields(s)) > 1 {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" && len(strings.Fields(s)) > 1 {
		out = append(out, s)
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{}, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}

func tokenOverlap(query, evidence map[string]struct{}) float64 {
	if len(query) == 0 || len(evidence) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := evidence[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}
