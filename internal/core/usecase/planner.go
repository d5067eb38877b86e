package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// plannerStage turns the routed query into a retrieval plan. Simple
// intents map to a single sub-query; comparison and multi-hop intents
// are decomposed by the planner model. On a retry pass it instead
// appends the validator's unsupported spans as refinement sub-queries.
// Decomposition failures degrade to the single-sub-query case.
type plannerStage struct {
	cfg PipelineConfig
}

func (s *plannerStage) Name() string { return "planner" }

func (s *plannerStage) Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	if st.Retries > 0 {
		return s.refine(st)
	}

	base := domain.SubQuery{
		Text:     st.Query.Text,
		Language: st.Query.Language,
		Intent:   st.Intent,
		Origin:   domain.OriginPlanner,
	}

	if !st.Intent.MultiStep() {
		st.Plan = domain.QueryPlan{SubQueries: []domain.SubQuery{base}}
		return StageResult{Summary: "plan: 1 sub-query"}, nil
	}

	parts, err := s.decompose(ctx, caps, st)
	if err != nil {
		if domain.IsKind(err, domain.ErrBudgetExceeded) {
			return StageResult{}, err
		}
		st.Plan = domain.QueryPlan{SubQueries: []domain.SubQuery{base}}
		return StageResult{
			Summary:  fmt.Sprintf("decomposition failed, single sub-query: %v", err),
			Degraded: true,
		}, nil
	}

	subs := make([]domain.SubQuery, 0, len(parts))
	for _, part := range parts {
		subs = append(subs, domain.SubQuery{
			Text:     part,
			Language: st.Query.Language,
			Intent:   st.Intent,
			Origin:   domain.OriginPlanner,
		})
	}
	st.Plan = domain.QueryPlan{SubQueries: subs}
	return StageResult{Summary: fmt.Sprintf("plan: %d sub-queries", len(subs))}, nil
}

// refine appends unsupported spans from the failed validation as extra
// sub-queries, bounded and deduplicated so an adversarial validator
// cannot grow the plan without limit.
func (s *plannerStage) refine(st *domain.PipelineState) (StageResult, error) {
	added := 0
	if st.Verdict != nil {
		for _, span := range st.Verdict.UnsupportedSpans {
			if added >= s.cfg.MaxRetrySubQueries {
				break
			}
			span = strings.TrimSpace(span)
			if span == "" || st.Plan.Contains(span) {
				continue
			}
			st.Plan.SubQueries = append(st.Plan.SubQueries, domain.SubQuery{
				Text:     span,
				Language: st.Query.Language,
				Intent:   st.Intent,
				Origin:   domain.OriginRetry,
			})
			added++
		}
	}
	return StageResult{
		Summary: fmt.Sprintf("retry %d: %d refinement sub-queries added", st.Retries, added),
	}, nil
}

func (s *plannerStage) decompose(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) ([]string, error) {
	prompt := buildPlannerPrompt(st.Query.Text, st.Intent, s.cfg.MaxPlanSubQueries)
	raw, err := caps.generate(ctx, prompt, ports.RolePlanner)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SubQueries []string `json:"sub_queries"`
	}
	if err := unmarshalModelJSON(raw, &parsed); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(parsed.SubQueries))
	seen := make(map[string]struct{}, len(parsed.SubQueries))
	for _, part := range parsed.SubQueries {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
		if len(out) == s.cfg.MaxPlanSubQueries {
			break
		}
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("decomposition produced %d usable sub-queries", len(out))
	}
	return out, nil
}

func buildPlannerPrompt(query string, intent domain.Intent, maxParts int) string {
	return fmt.Sprintf(`You are a query planning component for a multilingual document QA system.
The user query has intent %q and must be decomposed into independently retrievable sub-queries.
Return ONLY a valid JSON object with this schema:
{"sub_queries":["...","..."]}
Rules:
- between 2 and %d sub-queries
- each sub-query is self-contained and keeps the original language
- no commentary outside the JSON

Query:
%s`, intent, maxParts, query)
}
