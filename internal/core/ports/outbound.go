package ports

import (
	"context"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

// CandidateSource lists source messages and fetches the documents they carry.
type CandidateSource interface {
	ListMessages(ctx context.Context) ([]string, error)
	FetchDocuments(ctx context.Context, sourceID string) ([]domain.CandidateDocument, error)
	// Release is called once a document reached organized or skipped-duplicate.
	Release(ctx context.Context, doc domain.CandidateDocument) error
}

// TextExtractor extracts plain text from raw document content.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// Embedder builds vectors for exemplars and candidate text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ExemplarIndex stores the training corpus and answers nearest-neighbour queries.
type ExemplarIndex interface {
	Nearest(ctx context.Context, vector []float32, k int) ([]domain.ExemplarMatch, error)
	Replace(ctx context.Context, exemplars []domain.Exemplar) error
	Count(ctx context.Context) (int, error)
}

// ReasoningBackend answers a constrained prompt with a JSON document.
type ReasoningBackend interface {
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// KeyValueStore is an append-only keyed store split into buckets.
// Put keeps the first value written for a key and reports whether it stored.
type KeyValueStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Put(ctx context.Context, bucket, key string, value []byte) (bool, error)
	Flush(ctx context.Context) error
}

// PrunableStore is implemented by stores supporting explicit retention.
type PrunableStore interface {
	KeyValueStore
	Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error
	Delete(ctx context.Context, bucket string, keys ...string) error
}

// FileStore places organized files without ever overwriting an existing one.
type FileStore interface {
	// Place writes data under dir/name and returns the final path, which may carry a collision suffix.
	Place(ctx context.Context, dir, name string, data []byte) (string, error)
	Remove(ctx context.Context, path string) error
}

// RunPublisher hands finished run summaries to downstream consumers.
type RunPublisher interface {
	PublishRunSummary(ctx context.Context, summary *domain.RunSummary) error
}

// RunRequester asks a worker to execute a run.
type RunRequester interface {
	PublishRunRequest(ctx context.Context, req domain.RunRequest) error
}

// MessageQueue carries run requests to workers and summaries back out.
type MessageQueue interface {
	RunPublisher
	RunRequester
	SubscribeRunRequests(ctx context.Context, handler func(context.Context, domain.RunRequest) error) error
}

