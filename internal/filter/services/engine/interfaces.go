package engine

import (
	"context"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/services/sources"
)

// SourceManager loads and refreshes the list of every profile slot.
type SourceManager interface {
	Slots() int
	SetReference(ctx context.Context, slot int, ref string) (<-chan struct{}, error)
	Reload(ctx context.Context, slot int) (<-chan struct{}, error)
	Profiles() []sources.Profile
}

// Evaluator decides requests against the loaded lists.
type Evaluator interface {
	EvaluateBlock(ev domain.RequestEvent) domain.Decision
	EvaluateRedirect(ev domain.RequestEvent) domain.Decision
}
