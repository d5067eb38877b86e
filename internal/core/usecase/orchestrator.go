package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// Observer receives pipeline lifecycle events. The metrics layer
// implements it; a no-op default keeps the orchestrator usable without
// one.
type Observer interface {
	QueryStarted()
	QueryFinished(state domain.State, elapsed time.Duration, retries int)
	StageObserved(stage string, d time.Duration, degraded bool)
}

type nopObserver struct{}

func (nopObserver) QueryStarted()                                  {}
func (nopObserver) QueryFinished(domain.State, time.Duration, int) {}
func (nopObserver) StageObserved(string, time.Duration, bool)      {}

// Dependencies are the external capabilities the pipeline calls out to.
// Pool is optional; when nil, retrieval branches run inline.
type Dependencies struct {
	Generator        ports.Generator
	VectorSearcher   ports.VectorSearcher
	KeywordSearcher  ports.KeywordSearcher
	Reranker         ports.RerankScorer
	ChunkFetcher     ports.ChunkFetcher
	LanguageDetector ports.LanguageDetector
	Pool             *ants.Pool
}

type stageEntry struct {
	stage Stage
	next  func(st *domain.PipelineState) domain.State
}

// Orchestrator drives one query through the answer pipeline: a fixed
// transition table over stateless stages, with all per-query mutable
// data held in the PipelineState and the resource ledger. Safe for
// concurrent use; each AnswerQuery call is independent.
type Orchestrator struct {
	cfg      PipelineConfig
	deps     Dependencies
	observer Observer
	table    map[domain.State]stageEntry
}

func NewOrchestrator(cfg PipelineConfig, deps Dependencies, observer Observer) *Orchestrator {
	cfg = cfg.normalize()
	if observer == nil {
		observer = nopObserver{}
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		observer: observer,
	}
	o.table = map[domain.State]stageEntry{
		domain.StateRouting: {
			stage: &routerStage{detector: deps.LanguageDetector, cfg: cfg},
			next:  stateConst(domain.StatePlanning),
		},
		domain.StatePlanning: {
			stage: &plannerStage{cfg: cfg},
			next:  stateConst(domain.StateRetrieving),
		},
		domain.StateRetrieving: {
			stage: &retrieveStage{cfg: cfg, pool: deps.Pool},
			next:  stateConst(domain.StateReranking),
		},
		domain.StateReranking: {
			stage: newRerankStage(cfg),
			next:  stateConst(domain.StateAnalyzing),
		},
		domain.StateAnalyzing: {
			stage: &analyzeStage{cfg: cfg},
			next:  stateConst(domain.StateSynthesizing),
		},
		domain.StateSynthesizing: {
			stage: &synthesizeStage{cfg: cfg},
			next:  stateConst(domain.StateValidating),
		},
		domain.StateValidating: {
			stage: &validateStage{cfg: cfg},
			next: func(st *domain.PipelineState) domain.State {
				if st.Verdict != nil && st.Verdict.Pass {
					return domain.StateDone
				}
				if st.Retries < cfg.MaxRetries {
					return domain.StateRetry
				}
				return domain.StateDone
			},
		},
		domain.StateRetry: {
			stage: &retryStage{},
			next:  stateConst(domain.StatePlanning),
		},
	}
	return o
}

func stateConst(s domain.State) func(*domain.PipelineState) domain.State {
	return func(*domain.PipelineState) domain.State { return s }
}

// AnswerQuery runs the full pipeline for one query and returns the
// terminal result. Only an invalid query or caller cancellation yields
// an error; budget exhaustion and stage degradation surface in the
// result's state, answer, and trace instead.
func (o *Orchestrator) AnswerQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	budget := resolveBudget(req.Budget, o.cfg.DefaultBudget)
	led := newLedger(budget)
	caps := &capabilitySet{
		generator: o.deps.Generator,
		vector:    o.deps.VectorSearcher,
		keyword:   o.deps.KeywordSearcher,
		reranker:  o.deps.Reranker,
		fetcher:   o.deps.ChunkFetcher,
		ledger:    led,
		cfg:       o.cfg,
	}
	st := &domain.PipelineState{
		Query: domain.Query{
			Text:    req.Text,
			Filters: req.Filters,
			TopK:    req.TopK,
		},
	}

	qctx := ctx
	if budget.MaxElapsed > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, budget.MaxElapsed)
		defer cancel()
	}

	o.observer.QueryStarted()
	started := time.Now()

	state, err := o.run(ctx, qctx, caps, st, led)
	o.observer.QueryFinished(state, time.Since(started), st.Retries)
	if err != nil {
		return nil, err
	}
	return o.finalize(st, state, led), nil
}

// run advances the state machine until a terminal state. The parent
// and budget contexts are distinguished so that caller cancellation
// propagates as an error while budget timeouts degrade.
func (o *Orchestrator) run(parent, qctx context.Context, caps *capabilitySet, st *domain.PipelineState, led *ledger) (domain.State, error) {
	state := domain.StateRouting
	for !state.Terminal() {
		if err := led.checkElapsed(); err != nil {
			return domain.StateBudgetExceeded, nil
		}

		entry, ok := o.table[state]
		if !ok {
			return domain.StateFailed, fmt.Errorf("answer query: no stage for state %s", state)
		}

		stageStart := time.Now()
		res, err := entry.stage.Run(qctx, caps, st)
		stageElapsed := time.Since(stageStart)
		o.observer.StageObserved(entry.stage.Name(), stageElapsed, res.Degraded)

		if err != nil {
			if parent.Err() != nil {
				return state, parent.Err()
			}
			if domain.IsKind(err, domain.ErrBudgetExceeded) || errors.Is(err, context.DeadlineExceeded) {
				st.AddTrace(entry.stage.Name(), stageElapsed, "halted: budget exhausted", true)
				return domain.StateBudgetExceeded, nil
			}
			if domain.IsKind(err, domain.ErrInvalidInput) {
				return domain.StateFailed, err
			}
			st.AddTrace(entry.stage.Name(), stageElapsed, fmt.Sprintf("failed: %v", err), true)
			return domain.StateFailed, nil
		}

		st.AddTrace(entry.stage.Name(), stageElapsed, res.Summary, res.Degraded)
		state = entry.next(st)
	}
	return state, nil
}

func (o *Orchestrator) finalize(st *domain.PipelineState, state domain.State, led *ledger) *domain.QueryResult {
	result := &domain.QueryResult{
		State: state,
		Usage: led.snapshot(),
		Trace: st.Trace,
	}
	if st.Draft != nil {
		result.Answer = *st.Draft
	} else {
		result.Answer = domain.Answer{Degraded: true}
	}

	switch state {
	case domain.StateDone:
		verdictConfidence := st.AnalysisConfidence
		if st.Verdict != nil {
			verdictConfidence = st.Verdict.Confidence
			if !st.Verdict.Pass {
				result.Answer.Degraded = true
			}
		}
		confidence := 0.2*st.LanguageConfidence + 0.4*st.AnalysisConfidence + 0.4*verdictConfidence
		if result.Answer.Degraded && confidence > 0.5 {
			confidence = 0.5
		}
		result.Answer.Confidence = confidence
	case domain.StateBudgetExceeded:
		result.Answer.Degraded = true
		if st.Draft == nil {
			result.Answer.Confidence = 0
		} else if result.Answer.Confidence > 0.5 {
			result.Answer.Confidence = 0.5
		}
	case domain.StateFailed:
		result.Answer = domain.Answer{Degraded: true}
	}
	return result
}

// retryStage is the bookkeeping step between a failed validation and
// the next planning pass. The verdict is kept so the planner can turn
// unsupported spans into refinement sub-queries.
type retryStage struct{}

func (s *retryStage) Name() string { return "retry" }

func (s *retryStage) Run(_ context.Context, _ *capabilitySet, st *domain.PipelineState) (StageResult, error) {
	st.Retries++
	return StageResult{Summary: fmt.Sprintf("attempt %d", st.Retries+1)}, nil
}
