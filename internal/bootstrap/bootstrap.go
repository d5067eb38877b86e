package bootstrap

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"github.com/okulov/polyqa/internal/config"
	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
	"github.com/okulov/polyqa/internal/core/usecase"
	"github.com/okulov/polyqa/internal/infrastructure/chunking"
	"github.com/okulov/polyqa/internal/infrastructure/extractor/plaintext"
	"github.com/okulov/polyqa/internal/infrastructure/langdetect"
	"github.com/okulov/polyqa/internal/infrastructure/llm/ollama"
	"github.com/okulov/polyqa/internal/infrastructure/queue/nats"
	"github.com/okulov/polyqa/internal/infrastructure/repository/postgres"
	"github.com/okulov/polyqa/internal/infrastructure/resilience"
	"github.com/okulov/polyqa/internal/infrastructure/storage/localfs"
	"github.com/okulov/polyqa/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	Answerer  ports.QueryAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, observer usecase.Observer) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:      cfg.OllamaURL,
		DefaultModel: cfg.OllamaDefaultModel,
		EmbedModel:   cfg.OllamaEmbedModel,
		Models:       roleModels(cfg),
	}, executor)
	generator := ollama.NewGenerator(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)
	reranker := ollama.NewReranker(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	searcher := qdrant.NewSearcher(vectorDB, embedder)

	detector := langdetect.New()
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := plaintext.NewExtractor(storage)

	pool, err := ants.NewPool(cfg.RetrievalWorkers)
	if err != nil {
		return nil, fmt.Errorf("init retrieval pool: %w", err)
	}

	pipeCfg := pipelineConfig(cfg)
	answerer := usecase.NewOrchestrator(pipeCfg, usecase.Dependencies{
		Generator:        generator,
		VectorSearcher:   searcher,
		KeywordSearcher:  searcher,
		Reranker:         reranker,
		ChunkFetcher:     searcher,
		LanguageDetector: detector,
		Pool:             pool,
	}, observer)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, extractor, detector, chunker, embedder, vectorDB, pipeCfg)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		Answerer:  answerer,

		closeFn: func() {
			pool.Release()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func roleModels(cfg config.Config) map[ports.Role]string {
	models := make(map[ports.Role]string, 4)
	for role, model := range map[ports.Role]string{
		ports.RolePlanner:     cfg.OllamaPlannerModel,
		ports.RoleAnalyzer:    cfg.OllamaAnalyzerModel,
		ports.RoleSynthesizer: cfg.OllamaSynthesizerModel,
		ports.RoleValidator:   cfg.OllamaValidatorModel,
	} {
		if model != "" {
			models[role] = model
		}
	}
	return models
}

func pipelineConfig(cfg config.Config) usecase.PipelineConfig {
	return usecase.PipelineConfig{
		DefaultLanguage:    cfg.DefaultLanguage,
		LanguageThreshold:  cfg.LanguageThreshold,
		CandidatePoolSize:  cfg.CandidatePoolSize,
		RerankTopK:         cfg.RerankTopK,
		FusionRRFC:         cfg.FusionRRFC,
		VectorWeight:       cfg.VectorWeight,
		KeywordWeight:      cfg.KeywordWeight,
		MaxRetries:         cfg.MaxRetries,
		MaxPlanSubQueries:  cfg.MaxPlanSubQueries,
		MaxRetrySubQueries: cfg.MaxRetrySubQueries,
		OverlapThreshold:   cfg.OverlapThreshold,

		SearchTimeout:   cfg.SearchTimeout,
		RerankTimeout:   cfg.RerankTimeout,
		GenerateTimeout: cfg.GenerateTimeout,

		DefaultBudget: domain.Budget{
			MaxElapsed:     cfg.BudgetMaxElapsed,
			MaxInvocations: cfg.BudgetMaxInvocations,
			MaxTokens:      cfg.BudgetMaxTokens,
		},
	}
}
