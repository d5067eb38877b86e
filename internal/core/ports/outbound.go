package ports

import (
	"context"
	"io"

	"github.com/okulov/polyqa/internal/core/domain"
)

// Role selects the generation model configured for a pipeline stage.
type Role string

const (
	RolePlanner     Role = "planner"
	RoleAnalyzer    Role = "analyzer"
	RoleSynthesizer Role = "synthesizer"
	RoleValidator   Role = "validator"
)

// Usage is the token consumption reported by one generation call.
// Zero values mean the backend did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Generation is the output of one generative call.
type Generation struct {
	Text  string
	Usage Usage
}

// Generator runs natural-language reasoning steps for the planner,
// analyzer, synthesizer and validator stages.
type Generator interface {
	Generate(ctx context.Context, prompt string, role Role) (Generation, error)
}

// VectorSearcher performs similarity search against the configured
// index partition for the sub-query's language.
type VectorSearcher interface {
	SearchVector(ctx context.Context, queryText, language string, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error)
}

// KeywordSearcher performs lexical search over the same partition.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, queryText, language string, filter domain.SearchFilter, k int) ([]domain.ScoredRef, error)
}

// RerankScorer assigns a refined relevance score to each passage for
// the given query text. Scores align with the passages slice.
type RerankScorer interface {
	ScoreBatch(ctx context.Context, queryText string, passages []string) ([]float64, error)
}

// ChunkFetcher resolves chunk text for candidates whose search hit
// carried no payload.
type ChunkFetcher interface {
	FetchChunkText(ctx context.Context, chunkID string) (string, error)
}

// LanguageDetector identifies the dominant language of a text with a
// confidence in [0,1]. It never fails; unknown inputs report zero
// confidence.
type LanguageDetector interface {
	Detect(text string) (language string, confidence float64)
}

// Embedder builds vectors for chunks and query text (ingestion path).
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits extracted text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// VectorIndexer writes chunk vectors and payloads into the search
// index.
type VectorIndexer interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveLanguage(ctx context.Context, id string, language string, chunkCount int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}
