package usecase

import (
	"context"

	"github.com/okulov/polyqa/internal/core/domain"
)

// StageResult is what a stage reports into the execution trace.
type StageResult struct {
	Summary  string
	Degraded bool
}

// Stage is the uniform contract every pipeline stage implements. A
// stage mutates the PipelineState it is handed and degrades gracefully
// where it can; the only errors it returns are budget exhaustion and
// unrecoverable input errors.
type Stage interface {
	Name() string
	Run(ctx context.Context, caps *capabilitySet, st *domain.PipelineState) (StageResult, error)
}
