package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

const (
	exemplarSnippetChars = 1000
	embedBatchSize       = 16
)

// CorpusBuilder rebuilds the exemplar index from a directory of labeled documents.
// A file's label is its first sub-directory when that names a taxonomy label,
// otherwise the keyword match on filename then content, otherwise "other".
type CorpusBuilder struct {
	taxonomy  domain.Taxonomy
	extractor ports.TextExtractor
	embedder  ports.Embedder
	index     ports.ExemplarIndex
	logger    *slog.Logger
}

func NewCorpusBuilder(
	taxonomy domain.Taxonomy,
	extractor ports.TextExtractor,
	embedder ports.Embedder,
	index ports.ExemplarIndex,
	logger *slog.Logger,
) *CorpusBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusBuilder{
		taxonomy:  taxonomy,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		logger:    logger,
	}
}

func (b *CorpusBuilder) Rebuild(ctx context.Context, dir string) (*domain.CorpusStats, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "rebuild corpus", errors.New("training directory is required"))
	}

	exemplars, skipped, err := b.collect(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(exemplars) == 0 {
		// The current index stays as it is.
		return nil, domain.WrapError(domain.ErrIndexEmpty, "rebuild corpus", fmt.Errorf("no usable documents in %s", dir))
	}

	if err := b.embed(ctx, exemplars); err != nil {
		return nil, err
	}
	if err := b.index.Replace(ctx, exemplars); err != nil {
		return nil, fmt.Errorf("replace exemplar index: %w", err)
	}

	stats := &domain.CorpusStats{Exemplars: len(exemplars), Skipped: skipped, ByLabel: map[domain.Label]int{}}
	for _, ex := range exemplars {
		stats.ByLabel[ex.Label]++
	}
	b.logger.Info("corpus_rebuilt", "exemplars", stats.Exemplars, "skipped", stats.Skipped)
	return stats, nil
}

func (b *CorpusBuilder) collect(ctx context.Context, dir string) ([]domain.Exemplar, int, error) {
	var exemplars []domain.Exemplar
	skipped := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("corpus_file_unreadable", "path", path, "error", err)
			skipped++
			return nil
		}

		text := ""
		if b.extractor != nil {
			text, err = b.extractor.Extract(ctx, d.Name(), data)
			if err != nil {
				b.logger.Warn("corpus_text_extraction_failed", "path", path, "error", err)
			}
		}
		snippet := truncateRunes(strings.TrimSpace(text), exemplarSnippetChars)
		if snippet == "" {
			snippet = d.Name()
		}

		exemplars = append(exemplars, domain.Exemplar{
			ID:             uuid.NewString(),
			Label:          b.labelFor(dir, path, d.Name(), snippet),
			SourceFilename: d.Name(),
			Snippet:        snippet,
		})
		return nil
	})
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrIO, "walk training directory", err)
	}
	return exemplars, skipped, nil
}

func (b *CorpusBuilder) labelFor(root, path, filename, snippet string) domain.Label {
	if rel, err := filepath.Rel(root, path); err == nil {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) > 1 {
			if label, ok := b.taxonomy.Normalize(parts[0]); ok {
				return label
			}
		}
	}
	if label, ok := b.taxonomy.MatchKeywords(filename); ok {
		return label
	}
	if label, ok := b.taxonomy.MatchKeywords(snippet); ok {
		return label
	}
	return domain.LabelOther
}

func (b *CorpusBuilder) embed(ctx context.Context, exemplars []domain.Exemplar) error {
	for start := 0; start < len(exemplars); start += embedBatchSize {
		end := min(start+embedBatchSize, len(exemplars))
		texts := make([]string, 0, end-start)
		for _, ex := range exemplars[start:end] {
			texts = append(texts, buildSimilarityQuery(ex.SourceFilename, ex.Snippet))
		}
		vectors, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed exemplars: %w", err)
		}
		if len(vectors) != len(texts) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"embed exemplars",
				fmt.Errorf("vectors/exemplars mismatch: %d/%d", len(vectors), len(texts)),
			)
		}
		for i, vector := range vectors {
			exemplars[start+i].Vector = vector
		}
	}
	return nil
}
