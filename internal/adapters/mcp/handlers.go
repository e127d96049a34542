package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

const maxClassifyBytes = 32 << 20

type ClassifyRequest struct {
	Path string `json:"path"`
}

type RunRequest struct {
	RequestID string `json:"request_id"`
}

type PruneRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

type Handlers struct {
	deps Deps
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

func (h *Handlers) enabled(tool string) bool {
	switch tool {
	case "classify_document":
		return h.deps.Previewer != nil
	case "run_pipeline":
		return h.deps.Pipeline != nil
	case "rebuild_corpus":
		return h.deps.Corpus != nil && h.deps.TrainingPath != ""
	case "prune_identity":
		return h.deps.Retention != nil
	default:
		return false
	}
}

// HandleClassify handles the classify_document tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClassifyRequest](req)
	if err != nil {
		return errorResult(domain.WrapError(domain.ErrInvalidInput, "decode classify request", err), nil), nil
	}
	data, err := readDocument(input.Path)
	if err != nil {
		return errorResult(err, nil), nil
	}

	result, err := h.deps.Previewer.Preview(ctx, filepath.Base(input.Path), data)
	if err != nil {
		return errorResult(err, nil), nil
	}
	return successResult(result)
}

// HandleRun handles the run_pipeline tool call. An aborted run reports its
// partial summary next to the error.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunRequest](req)
	if err != nil {
		return errorResult(domain.WrapError(domain.ErrInvalidInput, "decode run request", err), nil), nil
	}

	summary, err := h.deps.Pipeline.Run(ctx, domain.RunRequest{RequestID: strings.TrimSpace(input.RequestID)})
	if err != nil {
		return errorResult(err, summary), nil
	}
	return successResult(summary)
}

// HandleRebuild handles the rebuild_corpus tool call.
func (h *Handlers) HandleRebuild(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.deps.Corpus.Rebuild(ctx, h.deps.TrainingPath)
	if err != nil {
		return errorResult(err, nil), nil
	}
	return successResult(stats)
}

// HandlePrune handles the prune_identity tool call.
func (h *Handlers) HandlePrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PruneRequest](req)
	if err != nil {
		return errorResult(domain.WrapError(domain.ErrInvalidInput, "decode prune request", err), nil), nil
	}
	if input.OlderThanDays < 1 {
		return errorResult(domain.WrapError(domain.ErrInvalidInput, "prune identity", errors.New("older_than_days must be at least 1")), nil), nil
	}

	removed, err := h.deps.Retention.Prune(ctx, input.OlderThanDays)
	if err != nil {
		return errorResult(err, nil), nil
	}
	return successResult(map[string]int{"removed": removed})
}

func readDocument(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", errors.New("path is required"))
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "read document", err)
		}
		return nil, domain.WrapError(domain.ErrIO, "read document", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxClassifyBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "read document", err)
	}
	if len(data) > maxClassifyBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", fmt.Errorf("document exceeds %d bytes", maxClassifyBytes))
	}
	return data, nil
}

func errorResult(err error, summary *domain.RunSummary) *mcp.CallToolResult {
	payload := map[string]any{
		"error": map[string]any{
			"code":    domain.ErrorCode(err),
			"message": err.Error(),
		},
	}
	if summary != nil {
		payload["summary"] = summary
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(content),
			},
		},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
