package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

// ProcessDocumentUseCase runs the asynchronous half of ingestion:
// extract text, detect the document language, chunk, embed and index.
// The detected language lands in the chunk payloads so retrieval can
// partition by it.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	detector  ports.LanguageDetector
	chunker   ports.Chunker
	embedder  ports.Embedder
	indexer   ports.VectorIndexer

	defaultLanguage   string
	languageThreshold float64
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	detector ports.LanguageDetector,
	chunker ports.Chunker,
	embedder ports.Embedder,
	indexer ports.VectorIndexer,
	cfg PipelineConfig,
) *ProcessDocumentUseCase {
	cfg = cfg.normalize()
	return &ProcessDocumentUseCase{
		repo:              repo,
		extractor:         extractor,
		detector:          detector,
		chunker:           chunker,
		embedder:          embedder,
		indexer:           indexer,
		defaultLanguage:   cfg.DefaultLanguage,
		languageThreshold: cfg.LanguageThreshold,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, chunkCount, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveLanguage(ctx, doc.ID, doc.Language, chunkCount); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("save language: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save language: %w", err)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch document by id: %w", err)
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return nil, 0, err
	}

	doc.Language = uc.detectLanguage(text)

	chunks, err := uc.chunk(text)
	if err != nil {
		return nil, 0, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, 0, err
	}

	if err := uc.indexer.IndexChunks(ctx, doc, chunks, vectors); err != nil {
		return nil, 0, fmt.Errorf("index chunks in vector db: %w", err)
	}

	return doc, len(chunks), nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) detectLanguage(text string) string {
	lang, confidence := uc.detector.Detect(text)
	if lang == "" || confidence < uc.languageThreshold {
		return uc.defaultLanguage
	}
	return lang
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
