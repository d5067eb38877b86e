package domain

import "strings"

// Intent is the routed query type. The taxonomy is fixed; the Router
// maps anything it cannot classify onto IntentFactual.
type Intent string

const (
	IntentFactual       Intent = "factual"
	IntentComparison    Intent = "comparison"
	IntentSummarization Intent = "summarization"
	IntentAnalysis      Intent = "analysis"
	IntentExtraction    Intent = "extraction"
	IntentMultiHop      Intent = "multi_hop"
	IntentOutOfScope    Intent = "out_of_scope"
)

// MultiStep reports whether the intent warrants decomposition into
// several retrieval sub-queries.
func (i Intent) MultiStep() bool {
	return i == IntentComparison || i == IntentMultiHop
}

// Query is the immutable pipeline input. Language stays empty until
// the routing stage fills it in.
type Query struct {
	Text     string       `json:"text"`
	Language string       `json:"language,omitempty"`
	Filters  SearchFilter `json:"filters,omitempty"`
	TopK     int          `json:"top_k,omitempty"`
}

// SubQueryOrigin records how a sub-query entered the plan.
type SubQueryOrigin string

const (
	OriginPlanner SubQueryOrigin = "planner"
	OriginRetry   SubQueryOrigin = "retry"
)

type SubQuery struct {
	Text     string         `json:"text"`
	Language string         `json:"language"`
	Intent   Intent         `json:"intent"`
	Origin   SubQueryOrigin `json:"origin"`
}

// QueryPlan is the ordered set of retrieval sub-queries. It is never
// empty once planning has run.
type QueryPlan struct {
	SubQueries []SubQuery `json:"sub_queries"`
}

// Contains reports whether the plan already carries a sub-query with
// the same normalized text.
func (p QueryPlan) Contains(text string) bool {
	needle := normalizeQueryText(text)
	for _, sq := range p.SubQueries {
		if normalizeQueryText(sq.Text) == needle {
			return true
		}
	}
	return false
}

func normalizeQueryText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
