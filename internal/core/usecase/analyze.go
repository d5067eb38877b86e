package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// analyzeStage extracts evidence-grounded claims per sub-query. Claims
// whose support does not resolve to a retrieved candidate are dropped,
// so no claim ever enters the state without at least one backing
// chunk. One sub-query's analysis failure never blocks the others.
type analyzeStage struct {
	cfg PipelineConfig
}

func (s *analyzeStage) Name() string { return "analyzer" }

func (s *analyzeStage) Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	st.Claims = st.Claims[:0]
	degraded := false
	failures := 0

	for i := range st.Evidence {
		ev := &st.Evidence[i]
		if len(ev.Candidates) == 0 {
			continue
		}

		claims, err := s.analyzeOne(ctx, caps, ev)
		if err != nil {
			if domain.IsKind(err, domain.ErrBudgetExceeded) || ctx.Err() != nil {
				return StageResult{}, err
			}
			degraded = true
			failures++
			continue
		}
		st.Claims = append(st.Claims, claims...)
	}

	st.AnalysisConfidence = analysisConfidence(st.Claims, st.Evidence)
	summary := fmt.Sprintf("%d claims, confidence=%.2f", len(st.Claims), st.AnalysisConfidence)
	if failures > 0 {
		summary += fmt.Sprintf(", %d sub-queries failed analysis", failures)
	}
	return StageResult{Summary: summary, Degraded: degraded}, nil
}

func (s *analyzeStage) analyzeOne(ctx context.Context, caps *capabilitySet, ev *domain.EvidenceSet) ([]domain.Claim, error) {
	raw, err := caps.generate(ctx, buildAnalyzerPrompt(ev), ports.RoleAnalyzer)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Claims []struct {
			Text    string   `json:"text"`
			Support []string `json:"support"`
		} `json:"claims"`
	}
	if err := unmarshalModelJSON(raw, &parsed); err != nil {
		return nil, err
	}

	out := make([]domain.Claim, 0, len(parsed.Claims))
	for _, claim := range parsed.Claims {
		text := strings.TrimSpace(claim.Text)
		if text == "" {
			continue
		}
		support := make([]string, 0, len(claim.Support))
		for _, chunkID := range claim.Support {
			chunkID = strings.TrimSpace(chunkID)
			if ev.Contains(chunkID) {
				support = append(support, chunkID)
			}
		}
		if len(support) == 0 {
			continue
		}
		out = append(out, domain.Claim{Text: text, Support: support})
	}
	return out, nil
}

// analysisConfidence mirrors the heuristic of the original analyzer:
// base 0.5, a bonus per extracted claim, and a share of the mean
// rerank score of the evidence actually retrieved.
func analysisConfidence(claims []domain.Claim, evidence []domain.EvidenceSet) float64 {
	if len(claims) == 0 {
		return 0
	}

	confidence := 0.5
	bonus := 0.1 * float64(len(claims))
	if bonus > 0.3 {
		bonus = 0.3
	}
	confidence += bonus

	var sum float64
	var count int
	for _, ev := range evidence {
		for _, cand := range ev.Candidates {
			sum += cand.RerankScore
			count++
		}
	}
	if count > 0 {
		confidence += (sum / float64(count)) * 0.2
	}

	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func buildAnalyzerPrompt(ev *domain.EvidenceSet) string {
	var b strings.Builder
	for _, cand := range ev.Candidates {
		fmt.Fprintf(&b, "[%s] (doc=%s, relevance=%.3f)\n%s\n\n", cand.ChunkID, cand.DocumentID, cand.RerankScore, cand.Text)
	}

	return fmt.Sprintf(`You extract factual claims from evidence for a document QA system.
Use ONLY the evidence below. Every claim must cite the chunk ids it is based on.
Return ONLY a valid JSON object with this schema:
{"claims":[{"text":"...","support":["chunk-id"]}]}
Emit no claim that is not directly stated in the evidence. If the evidence
does not answer the question, return {"claims":[]}.

Question:
%s

Evidence:
%s`, ev.SubQuery.Text, b.String())
}
