package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

// PipelineObserver receives per-document and per-run outcomes, e.g. for metrics.
type PipelineObserver interface {
	ObserveDocument(outcome domain.DocumentOutcome, elapsed time.Duration)
	ObserveRun(summary *domain.RunSummary)
}

type PipelineDeps struct {
	Source     ports.CandidateSource
	Extractor  ports.TextExtractor
	Classifier *TieredClassifier
	Tracker    *IdentityTracker
	Dedup      *ContentDeduplicator
	Organizer  *FileOrganizer
	Publisher  ports.RunPublisher
	Observer   PipelineObserver
	Logger     *slog.Logger
}

// PipelineRunner sequences identity check, classification, dedup and filing for
// every document of a batch. Runs within one process are serialized.
type PipelineRunner struct {
	source     ports.CandidateSource
	extractor  ports.TextExtractor
	classifier *TieredClassifier
	tracker    *IdentityTracker
	dedup      *ContentDeduplicator
	organizer  *FileOrganizer
	publisher  ports.RunPublisher
	observer   PipelineObserver
	logger     *slog.Logger

	mu       sync.Mutex
	now      func() time.Time
	newRunID func() string
}

func NewPipelineRunner(deps PipelineDeps) *PipelineRunner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineRunner{
		source:     deps.Source,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		tracker:    deps.Tracker,
		dedup:      deps.Dedup,
		organizer:  deps.Organizer,
		publisher:  deps.Publisher,
		observer:   deps.Observer,
		logger:     logger,
		now:        time.Now,
		newRunID:   newRunID,
	}
}

func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Run processes the batch visible at call time. The summary is returned even when
// a systemic failure aborts the run; the error is then non-nil as well.
func (r *PipelineRunner) Run(ctx context.Context, req domain.RunRequest) (*domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := domain.NewRunSummary(r.newRunID(), r.now().UTC())
	logger := r.logger.With("run_id", summary.RunID)
	if req.RequestID != "" {
		logger = logger.With("request_id", req.RequestID)
	}
	logger.Info("run_started")

	err := r.scan(ctx, summary, logger)
	if err != nil {
		summary.Abort(err, r.now().UTC())
		logger.Error("run_aborted", "error", err, "processed", summary.Total())
	} else {
		summary.Finish(r.now().UTC())
	}
	r.report(ctx, summary, logger)
	return summary, err
}

func (r *PipelineRunner) scan(ctx context.Context, summary *domain.RunSummary, logger *slog.Logger) error {
	sourceIDs, err := r.source.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("list source messages: %w", err)
	}
	logger.Info("batch_listed", "messages", len(sourceIDs))

	for _, sourceID := range sourceIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processMessage(ctx, sourceID, summary, logger); err != nil {
			return err
		}
	}
	return nil
}

// processMessage returns only systemic errors; per-document failures end up in the summary.
func (r *PipelineRunner) processMessage(ctx context.Context, sourceID string, summary *domain.RunSummary, logger *slog.Logger) error {
	isNew, err := r.tracker.IsNew(ctx, sourceID)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			r.record(summary, failedOutcome(domain.DocumentOutcome{SourceID: sourceID}, err), 0)
			return nil
		}
		return fmt.Errorf("check source identity: %w", err)
	}
	if !isNew {
		r.record(summary, domain.DocumentOutcome{SourceID: sourceID, State: domain.StateSkippedIdentity}, 0)
		logger.Debug("source_already_processed", "source_id", sourceID)
		return nil
	}

	docs, err := r.source.FetchDocuments(ctx, sourceID)
	if err != nil {
		r.record(summary, failedOutcome(domain.DocumentOutcome{SourceID: sourceID}, fmt.Errorf("fetch documents: %w", err)), 0)
		logger.Warn("source_fetch_failed", "source_id", sourceID, "error", err)
		return nil
	}

	failed := 0
	for _, doc := range docs {
		started := r.now()
		outcome, err := r.processDocument(ctx, doc, logger)
		r.record(summary, outcome, r.now().Sub(started))
		if err != nil && domain.IsSystemic(err) {
			return err
		}
		if outcome.State == domain.StateFailed && !domain.IsKind(err, domain.ErrEmptyDocument) {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("source_left_for_retry", "source_id", sourceID, "failed_documents", failed)
		return nil
	}

	record := domain.SourceRecord{Documents: len(docs)}
	if len(docs) > 0 {
		record.Subject = docs[0].Subject
	}
	if err := r.tracker.MarkProcessed(ctx, sourceID, record); err != nil {
		return fmt.Errorf("mark source processed: %w", err)
	}
	return nil
}

func (r *PipelineRunner) processDocument(ctx context.Context, doc domain.CandidateDocument, logger *slog.Logger) (domain.DocumentOutcome, error) {
	outcome := domain.DocumentOutcome{
		SourceID: doc.SourceID,
		Filename: doc.Filename,
		State:    domain.StateIdentityChecked,
	}
	docLogger := logger.With("source_id", doc.SourceID, "filename", doc.Filename)

	data, err := loadContent(doc)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmptyDocument) {
			docLogger.Warn("document_empty")
			return failedOutcome(outcome, err), err
		}
		docLogger.Warn("document_unreadable", "error", err)
		return failedOutcome(outcome, err), err
	}

	text := r.extractText(ctx, doc, data, docLogger)
	cls := r.classifier.Classify(ctx, doc.Filename, text)
	outcome.State = domain.StateClassified
	outcome.Label = cls.Label
	outcome.Tier = cls.Tier
	outcome.Method = cls.Method
	if cls.Method == domain.MethodKeywordFallback {
		docLogger.Info("classification_fallback", "label", cls.Label, "reason", cls.Reason)
	}

	outcome.Fingerprint = r.dedup.Fingerprint(data)
	existing, duplicate, err := r.dedup.IsDuplicate(ctx, outcome.Fingerprint)
	if err != nil {
		return failedOutcome(outcome, err), err
	}
	outcome.State = domain.StateDedupChecked
	if duplicate {
		outcome.State = domain.StateSkippedDuplicate
		outcome.DuplicateOf = existing
		docLogger.Info("document_skipped_duplicate", "duplicate_of", existing)
		r.release(ctx, doc, docLogger)
		return outcome, nil
	}

	dest, err := r.organizer.Organize(ctx, doc, cls.Label, text, data)
	if err != nil {
		docLogger.Warn("document_organize_failed", "error", err)
		return failedOutcome(outcome, err), err
	}
	existing, registered, err := r.dedup.Register(ctx, outcome.Fingerprint, dest)
	if err != nil || !registered {
		if discardErr := r.organizer.Discard(ctx, dest); discardErr != nil {
			docLogger.Error("document_discard_failed", "path", dest, "error", discardErr)
		}
	}
	if err != nil {
		return failedOutcome(outcome, err), err
	}
	if !registered {
		outcome.State = domain.StateSkippedDuplicate
		outcome.DuplicateOf = existing
		docLogger.Info("document_skipped_duplicate", "duplicate_of", existing, "concurrent", true)
		r.release(ctx, doc, docLogger)
		return outcome, nil
	}

	outcome.State = domain.StateOrganized
	outcome.DestinationPath = dest
	docLogger.Info("document_organized",
		"label", cls.Label,
		"tier", cls.Tier,
		"method", cls.Method,
		"path", dest,
	)
	r.release(ctx, doc, docLogger)
	return outcome, nil
}

// Preview classifies one file without touching any store or the organized tree.
func (r *PipelineRunner) Preview(ctx context.Context, filename string, data []byte) (domain.Classification, error) {
	if len(data) == 0 {
		return domain.Classification{}, domain.WrapError(domain.ErrInvalidInput, "preview document", errors.New("empty document content"))
	}
	text := r.extractText(ctx, domain.CandidateDocument{Filename: filename}, data, r.logger)
	return r.classifier.Classify(ctx, filename, text), nil
}

// Prune applies the identity retention policy.
func (r *PipelineRunner) Prune(ctx context.Context, olderThanDays int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker.Prune(ctx, olderThanDays)
}

func (r *PipelineRunner) extractText(ctx context.Context, doc domain.CandidateDocument, data []byte, logger *slog.Logger) string {
	if r.extractor == nil {
		return ""
	}
	text, err := r.extractor.Extract(ctx, doc.Filename, data)
	if err != nil {
		logger.Warn("text_extraction_failed", "error", err)
		return ""
	}
	return text
}

func (r *PipelineRunner) release(ctx context.Context, doc domain.CandidateDocument, logger *slog.Logger) {
	if err := r.source.Release(ctx, doc); err != nil {
		logger.Warn("source_release_failed", "error", err)
	}
}

func (r *PipelineRunner) record(summary *domain.RunSummary, outcome domain.DocumentOutcome, elapsed time.Duration) {
	summary.Record(outcome)
	if r.observer != nil {
		r.observer.ObserveDocument(outcome, elapsed)
	}
}

func (r *PipelineRunner) report(ctx context.Context, summary *domain.RunSummary, logger *slog.Logger) {
	logger.Info("run_completed",
		"status", summary.Status,
		"organized", summary.Organized,
		"skipped_duplicate", summary.SkippedDuplicate,
		"skipped_identity", summary.SkippedIdentity,
		"failed", summary.Failed,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	if r.observer != nil {
		r.observer.ObserveRun(summary)
	}
	if r.publisher == nil {
		return
	}
	// The caller's context may already be cancelled when a run aborts.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.publisher.PublishRunSummary(publishCtx, summary); err != nil {
		logger.Warn("run_summary_publish_failed", "error", err)
	}
}

func loadContent(doc domain.CandidateDocument) ([]byte, error) {
	data := doc.Data
	if len(data) == 0 && doc.Path != "" {
		var err error
		if data, err = os.ReadFile(doc.Path); err != nil {
			return nil, domain.WrapError(domain.ErrIO, "read document", err)
		}
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", domain.ErrEmptyDocument)
	}
	return data, nil
}

func failedOutcome(outcome domain.DocumentOutcome, err error) domain.DocumentOutcome {
	outcome.State = domain.StateFailed
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}
