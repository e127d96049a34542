package ports

import (
	"context"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

// PipelineExecutor is the inbound contract for one full classification-and-filing run.
type PipelineExecutor interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunSummary, error)
}

// DocumentPreviewer classifies a single file without filing it.
type DocumentPreviewer interface {
	Preview(ctx context.Context, filename string, data []byte) (domain.Classification, error)
}

// CorpusRebuilder replaces the exemplar index from a training directory.
type CorpusRebuilder interface {
	Rebuild(ctx context.Context, dir string) (*domain.CorpusStats, error)
}

// RetentionManager applies the explicit identity retention policy.
type RetentionManager interface {
	Prune(ctx context.Context, olderThanDays int) (int, error)
}
