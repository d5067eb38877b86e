package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

const citationQuoteLimit = 200

// synthesizeStage composes the draft answer from the accumulated
// claims, attaching a citation for every supporting chunk. With no
// claims it produces an honest insufficient-evidence draft instead of
// fabricating; a generation failure falls back to stitching the claim
// texts together.
type synthesizeStage struct {
	cfg PipelineConfig
}

func (s *synthesizeStage) Name() string { return "synthesizer" }

func (s *synthesizeStage) Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	if len(st.Claims) == 0 {
		st.Draft = &domain.Answer{
			Text:       "The indexed documents do not contain enough evidence to answer this question.",
			Citations:  []domain.Citation{},
			Confidence: 0,
			Degraded:   true,
		}
		return StageResult{Summary: "no claims, insufficient-evidence draft", Degraded: true}, nil
	}

	citations := buildCitations(st.Claims, st.Evidence)

	text, err := caps.generate(ctx, buildSynthesizerPrompt(st.Query, st.Claims), ports.RoleSynthesizer)
	if err != nil {
		if domain.IsKind(err, domain.ErrBudgetExceeded) || ctx.Err() != nil {
			return StageResult{}, err
		}
		st.Draft = &domain.Answer{
			Text:       joinClaimTexts(st.Claims),
			Citations:  citations,
			Confidence: st.AnalysisConfidence,
			Degraded:   true,
		}
		return StageResult{
			Summary:  fmt.Sprintf("generation failed, claim-join fallback: %v", err),
			Degraded: true,
		}, nil
	}

	st.Draft = &domain.Answer{
		Text:       strings.TrimSpace(text),
		Citations:  citations,
		Confidence: st.AnalysisConfidence,
	}
	return StageResult{
		Summary: fmt.Sprintf("answer drafted, %d citations", len(citations)),
	}, nil
}

// buildCitations resolves every claim's support into citations,
// deduplicated by chunk id, in claim order. Every citation points at a
// candidate from this query's evidence sets.
func buildCitations(claims []domain.Claim, evidence []domain.EvidenceSet) []domain.Citation {
	seen := make(map[string]struct{})
	out := make([]domain.Citation, 0, len(claims))
	for _, claim := range claims {
		for _, chunkID := range claim.Support {
			if _, dup := seen[chunkID]; dup {
				continue
			}
			cand, ok := lookupCandidate(evidence, chunkID)
			if !ok {
				continue
			}
			seen[chunkID] = struct{}{}
			out = append(out, domain.Citation{
				DocumentID: cand.DocumentID,
				ChunkID:    cand.ChunkID,
				Quote:      truncateRunes(cand.Text, citationQuoteLimit),
			})
		}
	}
	return out
}

func lookupCandidate(evidence []domain.EvidenceSet, chunkID string) (domain.Candidate, bool) {
	for _, ev := range evidence {
		for _, cand := range ev.Candidates {
			if cand.ChunkID == chunkID {
				return cand, true
			}
		}
	}
	return domain.Candidate{}, false
}

func joinClaimTexts(claims []domain.Claim) string {
	parts := make([]string, 0, len(claims))
	for _, claim := range claims {
		parts = append(parts, strings.TrimRight(claim.Text, "."))
	}
	return strings.Join(parts, ". ") + "."
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func buildSynthesizerPrompt(query domain.Query, claims []domain.Claim) string {
	var b strings.Builder
	for i, claim := range claims {
		fmt.Fprintf(&b, "%d. %s (sources: %s)\n", i+1, claim.Text, strings.Join(claim.Support, ", "))
	}

	return fmt.Sprintf(`You compose the final answer for a document QA system.
Write a coherent answer to the question in language %q using ONLY the claims below.
Do not introduce any fact that is not in the claims. Do not mention claim numbers.
Return plain text only.

Question:
%s

Claims:
%s`, query.Language, query.Text, b.String())
}
