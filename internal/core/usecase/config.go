package usecase

import (
	"time"

	"github.com/okulov/polyqa/internal/core/domain"
)

// PipelineConfig carries every tunable of the answer pipeline. It is
// constructed once at bootstrap and passed by value; there is no
// ambient mutable configuration.
type PipelineConfig struct {
	DefaultLanguage    string
	LanguageThreshold  float64
	CandidatePoolSize  int
	RerankTopK         int
	FusionRRFC         int
	VectorWeight       float64
	KeywordWeight      float64
	MaxRetries         int
	MaxPlanSubQueries  int
	MaxRetrySubQueries int
	OverlapThreshold   float64

	SearchTimeout   time.Duration
	RerankTimeout   time.Duration
	GenerateTimeout time.Duration

	DefaultBudget domain.Budget
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultLanguage:    "en",
		LanguageThreshold:  0.5,
		CandidatePoolSize:  25,
		RerankTopK:         5,
		FusionRRFC:         60,
		VectorWeight:       0.7,
		KeywordWeight:      0.3,
		MaxRetries:         2,
		MaxPlanSubQueries:  4,
		MaxRetrySubQueries: 3,
		OverlapThreshold:   0.3,

		SearchTimeout:   10 * time.Second,
		RerankTimeout:   15 * time.Second,
		GenerateTimeout: 45 * time.Second,

		DefaultBudget: domain.Budget{
			MaxElapsed:     2 * time.Minute,
			MaxInvocations: 32,
			MaxTokens:      24000,
		},
	}
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	def := DefaultPipelineConfig()

	if out.DefaultLanguage == "" {
		out.DefaultLanguage = def.DefaultLanguage
	}
	if out.LanguageThreshold <= 0 || out.LanguageThreshold > 1 {
		out.LanguageThreshold = def.LanguageThreshold
	}
	if out.CandidatePoolSize <= 0 {
		out.CandidatePoolSize = def.CandidatePoolSize
	}
	if out.RerankTopK <= 0 {
		out.RerankTopK = def.RerankTopK
	}
	if out.FusionRRFC <= 0 {
		out.FusionRRFC = def.FusionRRFC
	}
	if out.VectorWeight <= 0 {
		out.VectorWeight = def.VectorWeight
	}
	if out.KeywordWeight <= 0 {
		out.KeywordWeight = def.KeywordWeight
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.MaxPlanSubQueries <= 1 {
		out.MaxPlanSubQueries = def.MaxPlanSubQueries
	}
	if out.MaxRetrySubQueries <= 0 {
		out.MaxRetrySubQueries = def.MaxRetrySubQueries
	}
	if out.OverlapThreshold <= 0 || out.OverlapThreshold >= 1 {
		out.OverlapThreshold = def.OverlapThreshold
	}
	if out.SearchTimeout <= 0 {
		out.SearchTimeout = def.SearchTimeout
	}
	if out.RerankTimeout <= 0 {
		out.RerankTimeout = def.RerankTimeout
	}
	if out.GenerateTimeout <= 0 {
		out.GenerateTimeout = def.GenerateTimeout
	}
	out.DefaultBudget = resolveBudget(out.DefaultBudget, def.DefaultBudget)
	return out
}

// resolveBudget fills zero fields of a requested budget from the
// configured default. A caller can only tighten, never widen, the
// configured ceiling.
func resolveBudget(requested, fallback domain.Budget) domain.Budget {
	out := requested
	if out.MaxElapsed <= 0 || (fallback.MaxElapsed > 0 && out.MaxElapsed > fallback.MaxElapsed) {
		out.MaxElapsed = fallback.MaxElapsed
	}
	if out.MaxInvocations <= 0 || (fallback.MaxInvocations > 0 && out.MaxInvocations > fallback.MaxInvocations) {
		out.MaxInvocations = fallback.MaxInvocations
	}
	if out.MaxTokens <= 0 || (fallback.MaxTokens > 0 && out.MaxTokens > fallback.MaxTokens) {
		out.MaxTokens = fallback.MaxTokens
	}
	return out
}
