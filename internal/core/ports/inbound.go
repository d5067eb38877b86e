package ports

import (
	"context"
	"io"

	"github.com/okulov/polyqa/internal/core/domain"
)

// QueryAnswerer is the primary inbound contract: one call runs the
// full routing/planning/retrieval/synthesis/validation pipeline.
type QueryAnswerer interface {
	AnswerQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document
// processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
