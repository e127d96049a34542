package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/infrastructure/resilience"
)

const upsertBatchSize = 64

// Client implements ports.ExemplarIndex on a Qdrant collection over REST.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return NewWithExecutor(baseURL, collection, nil)
}

func NewWithExecutor(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Replace drops the collection and uploads exemplars as the new corpus.
func (c *Client) Replace(ctx context.Context, exemplars []domain.Exemplar) error {
	if err := c.dropCollection(ctx); err != nil {
		return err
	}
	if len(exemplars) == 0 {
		return nil
	}
	size := len(exemplars[0].Vector)
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	for start := 0; start < len(exemplars); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(exemplars))
		points := make([]point, 0, end-start)
		for _, ex := range exemplars[start:end] {
			if len(ex.Vector) != size {
				return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("exemplar %s has vector size %d, want %d", ex.ID, len(ex.Vector), size))
			}
			points = append(points, point{
				ID:     ex.ID,
				Vector: ex.Vector,
				Payload: map[string]any{
					"label":           string(ex.Label),
					"source_filename": ex.SourceFilename,
					"snippet":         ex.Snippet,
				},
			})
		}
		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert"); err != nil {
			return err
		}
	}
	return nil
}

// Nearest returns the k most similar exemplars. A missing collection is an empty index.
func (c *Client) Nearest(ctx context.Context, vector []float32, k int) ([]domain.ExemplarMatch, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
		if resilience.HasStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.ExemplarMatch, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ExemplarMatch{
			ExemplarID:     fmt.Sprintf("%v", r.ID),
			Label:          domain.Label(getStringPayload(r.Payload, "label")),
			SourceFilename: getStringPayload(r.Payload, "source_filename"),
			Score:          r.Score,
		})
	}
	return out, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"exact": true}, &countResp, "count"); err != nil {
		if resilience.HasStatus(err, http.StatusNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (c *Client) dropCollection(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodDelete, "/collections/"+c.collection, nil, nil, "drop collection")
	if err != nil && !resilience.HasStatus(err, http.StatusNotFound) {
		return err
	}
	c.ensureMu.Lock()
	c.ensuredCollection = false
	c.ensuredVectorSize = 0
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.doJSON(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil, "ensure collection")
	// 409 if the collection already exists (depends on version/config).
	if err != nil && !resilience.HasStatus(err, http.StatusConflict) {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
