package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okulov/polyqa/internal/core/domain"
)

// retrieveStage runs hybrid retrieval for every sub-query in the plan.
// Sub-query branches execute concurrently on a shared worker pool;
// within a branch, the vector and keyword searches run concurrently
// and are joined before fusion. Results are committed in plan order,
// never completion order.
type retrieveStage struct {
	cfg  PipelineConfig
	pool *ants.Pool
}

func (s *retrieveStage) Name() string { return "retriever" }

func (s *retrieveStage) Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	subs := st.Plan.SubQueries
	evidence := make([]domain.EvidenceSet, len(subs))
	branchErrs := make([]error, len(subs))

	var wg sync.WaitGroup
	for i := range subs {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			evidence[i], branchErrs[i] = s.retrieveOne(ctx, caps, subs[i], st.Query.Filters)
		}
		if s.pool != nil {
			if err := s.pool.Submit(task); err != nil {
				task()
			}
		} else {
			task()
		}
	}
	wg.Wait()

	degraded := false
	failures := 0
	total := 0
	for i := range evidence {
		if branchErrs[i] != nil {
			// Budget exhaustion or cancellation halts the pipeline;
			// partial branch results are discarded.
			return StageResult{}, branchErrs[i]
		}
		if evidence[i].Degraded {
			degraded = true
		}
		if len(evidence[i].Candidates) == 0 {
			failures++
		}
		total += len(evidence[i].Candidates)
	}

	st.Evidence = evidence
	summary := fmt.Sprintf("%d sub-queries, %d candidates", len(subs), total)
	if failures > 0 {
		summary += fmt.Sprintf(", %d empty", failures)
	}
	return StageResult{Summary: summary, Degraded: degraded}, nil
}

// retrieveOne performs the concurrent two-modality search for a single
// sub-query and fuses the results. A single failed modality degrades
// to the surviving one; both failing yields an empty, degraded set. An
// error return is reserved for budget exhaustion and cancellation.
func (s *retrieveStage) retrieveOne(ctx context.Context, caps *capabilitySet, sq domain.SubQuery, filter domain.SearchFilter) (domain.EvidenceSet, error) {
	var (
		g            errgroup.Group
		vhits, khits []domain.ScoredRef
		verr, kerr   error
	)
	g.Go(func() error {
		vhits, verr = caps.searchVector(ctx, sq, filter, s.cfg.CandidatePoolSize)
		return nil
	})
	g.Go(func() error {
		khits, kerr = caps.searchKeyword(ctx, sq, filter, s.cfg.CandidatePoolSize)
		return nil
	})
	_ = g.Wait()

	out := domain.EvidenceSet{SubQuery: sq}
	for _, err := range []error{verr, kerr} {
		if err == nil {
			continue
		}
		if domain.IsKind(err, domain.ErrBudgetExceeded) || ctx.Err() != nil {
			return out, err
		}
		out.Degraded = true
	}
	if verr != nil && kerr != nil {
		return out, nil
	}

	out.Candidates = fuseHybrid(vhits, khits, fusionParams{
		VectorWeight:  s.cfg.VectorWeight,
		KeywordWeight: s.cfg.KeywordWeight,
		RRFC:          s.cfg.FusionRRFC,
	})
	s.resolveMissingText(ctx, caps, out.Candidates)
	return out, nil
}

func (s *retrieveStage) resolveMissingText(ctx context.Context, caps *capabilitySet, cands []domain.Candidate) {
	for i := range cands {
		if strings.TrimSpace(cands[i].Text) != "" {
			continue
		}
		text, err := caps.fetchChunkText(ctx, cands[i].ChunkID)
		if err != nil {
			continue
		}
		cands[i].Text = text
	}
}
