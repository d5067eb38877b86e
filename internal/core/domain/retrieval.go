package domain

// SearchFilter constrains retrieval to chunks whose payload matches
// every key/value pair.
type SearchFilter map[string]string

// Modality is a bitmask of the search paths that produced a candidate.
type Modality uint8

const (
	ModalityVector Modality = 1 << iota
	ModalityKeyword
)

func (m Modality) Has(other Modality) bool { return m&other != 0 }

func (m Modality) String() string {
	switch {
	case m.Has(ModalityVector) && m.Has(ModalityKeyword):
		return "vector+keyword"
	case m.Has(ModalityVector):
		return "vector"
	case m.Has(ModalityKeyword):
		return "keyword"
	default:
		return "none"
	}
}

// ScoredRef is a raw search hit returned by one index modality.
type ScoredRef struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// Candidate is a retrieved chunk after fusion. Per-modality scores are
// normalized to [0,1] within their originating result list; FusedScore
// is the weighted reciprocal-rank combination. RerankScore and Rank
// are assigned by the reranking stage.
type Candidate struct {
	ChunkID      string   `json:"chunk_id"`
	DocumentID   string   `json:"document_id"`
	Text         string   `json:"text"`
	Language     string   `json:"language,omitempty"`
	Modalities   Modality `json:"-"`
	VectorScore  float64  `json:"vector_score"`
	KeywordScore float64  `json:"keyword_score"`
	FusedScore   float64  `json:"fused_score"`
	RerankScore  float64  `json:"rerank_score"`
	Rank         int      `json:"rank"`
}

// EvidenceSet is the reranked, deduplicated top-K candidates for one
// sub-query.
type EvidenceSet struct {
	SubQuery   SubQuery    `json:"sub_query"`
	Candidates []Candidate `json:"candidates"`
	Degraded   bool        `json:"degraded"`
}

// Contains reports whether the evidence set holds the given chunk.
func (e EvidenceSet) Contains(chunkID string) bool {
	for _, c := range e.Candidates {
		if c.ChunkID == chunkID {
			return true
		}
	}
	return false
}

// Claim is an atomic assertion extracted from evidence. Support lists
// the chunk ids backing it and is never empty for a valid claim.
type Claim struct {
	Text    string   `json:"text"`
	Support []string `json:"support"`
}

type Citation struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Quote      string `json:"quote"`
}

// Answer is the synthesized result. Degraded marks best-effort answers
// produced after failed validation or budget exhaustion.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	Degraded   bool       `json:"degraded"`
}
