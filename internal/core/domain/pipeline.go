package domain

import "time"

// State enumerates the orchestrator's states. Terminal states carry no
// stage.
type State string

const (
	StateRouting        State = "ROUTING"
	StatePlanning       State = "PLANNING"
	StateRetrieving     State = "RETRIEVING"
	StateReranking      State = "RERANKING"
	StateAnalyzing      State = "ANALYZING"
	StateSynthesizing   State = "SYNTHESIZING"
	StateValidating     State = "VALIDATING"
	StateRetry          State = "RETRY"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
	StateBudgetExceeded State = "BUDGET_EXCEEDED"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateBudgetExceeded
}

// Budget is the per-query resource ceiling. Zero fields mean
// "use the configured default", resolved before orchestration starts.
type Budget struct {
	MaxElapsed     time.Duration `json:"max_elapsed"`
	MaxInvocations int           `json:"max_invocations"`
	MaxTokens      int           `json:"max_tokens"`
}

// LedgerSnapshot is a point-in-time copy of the resource ledger.
// Fields only ever grow during a query's lifetime.
type LedgerSnapshot struct {
	Elapsed     time.Duration `json:"elapsed"`
	Invocations int           `json:"invocations"`
	Tokens      int           `json:"tokens"`
}

// TraceEvent records one stage execution for the caller-visible trace.
type TraceEvent struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Summary  string        `json:"summary"`
	Degraded bool          `json:"degraded,omitempty"`
}

// Verdict is the validator's output. UnsupportedSpans drive refined
// retrieval on the next iteration.
type Verdict struct {
	Pass             bool     `json:"pass"`
	Confidence       float64  `json:"confidence"`
	UnsupportedSpans []string `json:"unsupported_spans,omitempty"`
	Issues           []string `json:"issues,omitempty"`
}

// PipelineState is the mutable working record threaded through the
// state machine. It is owned exclusively by one query's orchestration
// task and discarded once the orchestrator returns.
type PipelineState struct {
	Query              Query
	LanguageConfidence float64
	Intent             Intent
	Plan               QueryPlan
	Evidence           []EvidenceSet
	Claims             []Claim
	AnalysisConfidence float64
	Draft              *Answer
	Verdict            *Verdict
	Retries            int
	Trace              []TraceEvent
}

// AddTrace appends a stage record to the execution trace.
func (st *PipelineState) AddTrace(stage string, d time.Duration, summary string, degraded bool) {
	st.Trace = append(st.Trace, TraceEvent{
		Stage:    stage,
		Duration: d,
		Summary:  summary,
		Degraded: degraded,
	})
}

// KnownChunk reports whether any evidence set produced during this
// query contains the chunk. Citations must satisfy this check.
func (st *PipelineState) KnownChunk(chunkID string) bool {
	for _, ev := range st.Evidence {
		if ev.Contains(chunkID) {
			return true
		}
	}
	return false
}

// QueryRequest is the inbound payload for AnswerQuery.
type QueryRequest struct {
	Text    string       `json:"text"`
	Filters SearchFilter `json:"filters,omitempty"`
	TopK    int          `json:"top_k,omitempty"`
	Budget  Budget       `json:"budget,omitempty"`
}

// QueryResult is the caller-visible outcome: the answer, the terminal
// state, the resource ledger, and the execution trace.
type QueryResult struct {
	Answer Answer         `json:"answer"`
	State  State          `json:"state"`
	Usage  LedgerSnapshot `json:"usage"`
	Trace  []TraceEvent   `json:"trace"`
}
