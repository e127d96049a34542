package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

// ClassificationInput carries the candidate and the evidence gathered by earlier strategies.
type ClassificationInput struct {
	Filename string
	Text     string
	Matches  []domain.ExemplarMatch

	reasoningFailed bool
}

// ClassificationStrategy is one stage of the classifier chain. Returning nil, nil
// declines the input and hands it to the next stage.
type ClassificationStrategy interface {
	Name() string
	Attempt(ctx context.Context, in *ClassificationInput) (*domain.Classification, error)
}

type ClassifierConfig struct {
	TopK             int
	HighThreshold    float64
	ReasoningTimeout time.Duration
}

func (c ClassifierConfig) normalize() ClassifierConfig {
	out := c
	if out.TopK <= 0 {
		out.TopK = 3
	}
	if out.HighThreshold <= 0 || out.HighThreshold > 1 {
		out.HighThreshold = 0.8
	}
	if out.ReasoningTimeout <= 0 {
		out.ReasoningTimeout = 30 * time.Second
	}
	return out
}

type TieredClassifier struct {
	strategies []ClassificationStrategy
	fallback   *KeywordStrategy
	logger     *slog.Logger
}

// NewTieredClassifier builds the similarity → reasoning-only → keyword chain.
// Stages whose collaborators are nil are left out; the keyword stage is always present.
func NewTieredClassifier(
	taxonomy domain.Taxonomy,
	embedder ports.Embedder,
	index ports.ExemplarIndex,
	backend ports.ReasoningBackend,
	cfg ClassifierConfig,
	logger *slog.Logger,
) *TieredClassifier {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}

	fallback := NewKeywordStrategy(taxonomy)
	var strategies []ClassificationStrategy
	if backend != nil {
		reasoner := &labelReasoner{backend: backend, taxonomy: taxonomy, timeout: cfg.ReasoningTimeout}
		if embedder != nil && index != nil {
			strategies = append(strategies, &SimilarityReasoningStrategy{
				embedder:      embedder,
				index:         index,
				reasoner:      reasoner,
				topK:          cfg.TopK,
				highThreshold: cfg.HighThreshold,
			})
		}
		strategies = append(strategies, &ReasoningOnlyStrategy{reasoner: reasoner})
	}
	strategies = append(strategies, fallback)

	return NewTieredClassifierWithStrategies(strategies, fallback, logger)
}

func NewTieredClassifierWithStrategies(strategies []ClassificationStrategy, fallback *KeywordStrategy, logger *slog.Logger) *TieredClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TieredClassifier{strategies: strategies, fallback: fallback, logger: logger}
}

// Classify always returns a label of the taxonomy. Strategy errors are logged and
// the chain moves on.
func (c *TieredClassifier) Classify(ctx context.Context, filename, text string) domain.Classification {
	in := &ClassificationInput{Filename: filename, Text: text}
	for _, strategy := range c.strategies {
		cls, err := strategy.Attempt(ctx, in)
		if err != nil {
			c.logger.Warn("classification_stage_failed",
				"stage", strategy.Name(),
				"filename", filename,
				"error", err,
			)
			continue
		}
		if cls != nil {
			return *cls
		}
	}
	return c.fallback.classify(in)
}

// SimilarityReasoningStrategy retrieves the nearest exemplars and asks the reasoning
// backend to decide with their categories as context.
type SimilarityReasoningStrategy struct {
	embedder      ports.Embedder
	index         ports.ExemplarIndex
	reasoner      *labelReasoner
	topK          int
	highThreshold float64
}

func (s *SimilarityReasoningStrategy) Name() string { return string(domain.MethodSimilarityReasoning) }

func (s *SimilarityReasoningStrategy) Attempt(ctx context.Context, in *ClassificationInput) (*domain.Classification, error) {
	vector, err := s.embedder.EmbedQuery(ctx, buildSimilarityQuery(in.Filename, in.Text))
	if err != nil {
		return nil, fmt.Errorf("embed candidate: %w", err)
	}
	matches, err := s.index.Nearest(ctx, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve exemplars: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	in.Matches = matches

	label, err := s.reasoner.decide(ctx, buildSimilarityPrompt(in.Filename, in.Text, matches, s.reasoner.taxonomy))
	if err != nil {
		in.reasoningFailed = true
		return nil, err
	}

	top := matches[0]
	tier := domain.TierMedium
	if top.Score >= s.highThreshold && top.Label == label {
		tier = domain.TierHigh
	}
	return &domain.Classification{
		Label:    label,
		Tier:     tier,
		Method:   domain.MethodSimilarityReasoning,
		Evidence: matches,
		Reason:   fmt.Sprintf("top exemplar %s (%s) score %.3f", top.SourceFilename, top.Label, top.Score),
	}, nil
}

// ReasoningOnlyStrategy runs when retrieval produced no evidence. It declines once
// the reasoning backend already failed for this input.
type ReasoningOnlyStrategy struct {
	reasoner *labelReasoner
}

func (s *ReasoningOnlyStrategy) Name() string { return string(domain.MethodReasoningOnly) }

func (s *ReasoningOnlyStrategy) Attempt(ctx context.Context, in *ClassificationInput) (*domain.Classification, error) {
	if in.reasoningFailed {
		return nil, nil
	}
	label, err := s.reasoner.decide(ctx, buildReasoningOnlyPrompt(in.Filename, in.Text, s.reasoner.taxonomy))
	if err != nil {
		in.reasoningFailed = true
		return nil, err
	}
	return &domain.Classification{
		Label:  label,
		Tier:   domain.TierMedium,
		Method: domain.MethodReasoningOnly,
		Reason: "no exemplar evidence",
	}, nil
}

// KeywordStrategy matches taxonomy keywords on the filename, then on the text.
// It never declines.
type KeywordStrategy struct {
	taxonomy domain.Taxonomy
}

func NewKeywordStrategy(taxonomy domain.Taxonomy) *KeywordStrategy {
	return &KeywordStrategy{taxonomy: taxonomy}
}

func (s *KeywordStrategy) Name() string { return string(domain.MethodKeywordFallback) }

func (s *KeywordStrategy) Attempt(_ context.Context, in *ClassificationInput) (*domain.Classification, error) {
	cls := s.classify(in)
	return &cls, nil
}

func (s *KeywordStrategy) classify(in *ClassificationInput) domain.Classification {
	cls := domain.Classification{
		Label:    domain.LabelOther,
		Tier:     domain.TierLow,
		Method:   domain.MethodKeywordFallback,
		Evidence: in.Matches,
		Reason:   "no keyword matched",
	}
	if label, ok := s.taxonomy.MatchKeywords(in.Filename); ok {
		cls.Label = label
		cls.Reason = "filename keyword"
		return cls
	}
	if label, ok := s.taxonomy.MatchKeywords(in.Text); ok {
		cls.Label = label
		cls.Reason = "content keyword"
	}
	return cls
}

type labelReasoner struct {
	backend  ports.ReasoningBackend
	taxonomy domain.Taxonomy
	timeout  time.Duration
}

func (r *labelReasoner) decide(ctx context.Context, prompt string) (domain.Label, error) {
	raw, err := askBackend(ctx, r.backend, r.timeout, prompt)
	if err != nil {
		return "", err
	}
	return ParseLabel(raw, r.taxonomy)
}

// askBackend bounds one reasoning call by timeout. A deadline is reported as
// domain.ErrTemporary.
func askBackend(ctx context.Context, backend ports.ReasoningBackend, timeout time.Duration, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := backend.GenerateJSONFromPrompt(callCtx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrTemporary) {
			return "", domain.WrapError(domain.ErrTemporary, "reasoning backend", err)
		}
		return "", fmt.Errorf("reasoning backend: %w", err)
	}
	return raw, nil
}
