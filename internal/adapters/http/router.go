package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

const defaultMaxUploadBytes = 32 << 20

// MetricsRecorder is the subset of observability/metrics the router needs.
type MetricsRecorder interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordUpload(service string, size int64)
}

type Options struct {
	Service        string
	TrainingPath   string
	MaxUploadBytes int64

	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration

	// Requests enables POST /v1/runs?async=true, which hands the run to the worker pool.
	Requests ports.RunRequester

	Metrics MetricsRecorder
	Logger  *slog.Logger
}

type Router struct {
	pipeline  ports.PipelineExecutor
	previewer ports.DocumentPreviewer
	corpus    ports.CorpusRebuilder
	retention ports.RetentionManager
	opts      Options
	logger    *slog.Logger
}

func NewRouter(
	pipeline ports.PipelineExecutor,
	previewer ports.DocumentPreviewer,
	corpus ports.CorpusRebuilder,
	retention ports.RetentionManager,
	opts Options,
) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Service == "" {
		opts.Service = "paperflow-api"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		pipeline:  pipeline,
		previewer: previewer,
		corpus:    corpus,
		retention: retention,
		opts:      opts,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/runs", rt.startRun)
	mux.HandleFunc("/v1/classify", rt.classifyDocument)
	mux.HandleFunc("/v1/corpus/rebuild", rt.rebuildCorpus)
	mux.HandleFunc("/v1/identity/prune", rt.pruneIdentity)
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runResponse struct {
	Summary *domain.RunSummary `json:"summary"`
	Error   *errorBody         `json:"error,omitempty"`
}

func (rt *Router) startRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		rt.enqueueRun(w, r)
		return
	}

	// The batch keeps going if the caller disconnects.
	ctx := context.WithoutCancel(r.Context())
	summary, err := rt.pipeline.Run(ctx, domain.RunRequest{RequestID: requestIDFromContext(r.Context())})
	if err != nil {
		body := newErrorBody(err)
		writeJSON(w, mapErrorToHTTPStatus(err), runResponse{Summary: summary, Error: &body})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Summary: summary})
}

func (rt *Router) enqueueRun(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Requests == nil {
		writeFailure(w, http.StatusNotImplemented, "NOT_CONFIGURED", "run queue not configured")
		return
	}
	requestID := requestIDFromContext(r.Context())
	if err := rt.opts.Requests.PublishRunRequest(r.Context(), domain.RunRequest{RequestID: requestID}); err != nil {
		writeError(w, err)
		return
	}
	rt.logger.Info("run_enqueued", "request_id", requestID)
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": requestID})
}

type classifyResponse struct {
	Filename       string                `json:"filename"`
	Classification domain.Classification `json:"classification"`
}

func (rt *Router) classifyDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "file too large")
			return
		}
		writeFailure(w, http.StatusBadRequest, "INVALID_INPUT", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_INPUT", "read uploaded file")
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordUpload(rt.opts.Service, int64(len(data)))
	}

	cls, err := rt.previewer.Preview(r.Context(), fileHeader.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Filename: fileHeader.Filename, Classification: cls})
}

func (rt *Router) rebuildCorpus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if rt.corpus == nil {
		writeFailure(w, http.StatusNotImplemented, "NOT_CONFIGURED", "corpus rebuild not configured")
		return
	}

	stats, err := rt.corpus.Rebuild(context.WithoutCancel(r.Context()), rt.opts.TrainingPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) pruneIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if rt.retention == nil {
		writeFailure(w, http.StatusNotImplemented, "NOT_CONFIGURED", "retention not configured")
		return
	}

	days, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("older_than_days")))
	if err != nil || days <= 0 {
		writeFailure(w, http.StatusBadRequest, "INVALID_INPUT", "older_than_days must be a positive integer")
		return
	}
	removed, err := rt.retention.Prune(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]errorBody{"error": newErrorBody(err)})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
