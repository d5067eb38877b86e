package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// IngestDocumentUseCase accepts a document upload: store the bytes,
// record the metadata, and emit the event that wakes the processing
// worker. The upload is visible with status "uploaded" until the
// worker picks it up.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	id := uuid.NewString()
	storageKey := id + "_" + sanitizeFilename(filename)

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}

// sanitizeFilename keeps letters and digits of any script plus the
// usual filename punctuation; everything else, path separators
// included, becomes an underscore.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	out := []rune(base)
	for i, r := range out {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		case r == '.' || r == '-' || r == '_':
		default:
			out[i] = '_'
		}
	}
	cleaned := string(out)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "document.bin"
	}
	return cleaned
}
