package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/infrastructure/resilience"
)

func testExemplars() []domain.Exemplar {
	return []domain.Exemplar{
		{ID: "6f1c1a2e-0000-4000-8000-000000000001", Label: domain.LabelInvoice, Vector: []float32{0.1, 0.2}, SourceFilename: "facture.pdf"},
		{ID: "6f1c1a2e-0000-4000-8000-000000000002", Label: domain.LabelPayroll, Vector: []float32{0.3, 0.4}, SourceFilename: "paie.pdf"},
	}
}

func TestReplaceDropsThenRecreatesCollection(t *testing.T) {
	var calls []string
	var upserted int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/exemplars":
			http.Error(w, "not found", http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/exemplars":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/exemplars/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			atomic.AddInt32(&upserted, int32(len(body.Points)))
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "exemplars")
	if err := client.Replace(context.Background(), testExemplars()); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if len(calls) != 3 || !strings.HasPrefix(calls[0], http.MethodDelete) {
		t.Fatalf("unexpected call sequence: %v", calls)
	}
	if got := atomic.LoadInt32(&upserted); got != 2 {
		t.Fatalf("expected 2 points upserted, got %d", got)
	}
}

func TestReplaceIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/exemplars" {
			http.Error(w, "boom", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "exemplars")
	err := client.Replace(context.Background(), testExemplars())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestNearestMapsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/exemplars/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"a","score":0.93,"payload":{"label":"invoice","source_filename":"facture.pdf"}}]}`))
	}))
	defer server.Close()

	matches, err := New(server.URL, "exemplars").Nearest(context.Background(), []float32{0.1, 0.2}, 3)
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Label != domain.LabelInvoice || matches[0].Score != 0.93 {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestNearestTreatsMissingCollectionAsEmpty(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := New(server.URL, "exemplars")
	matches, err := client.Nearest(context.Background(), []float32{1}, 3)
	if err != nil || len(matches) != 0 {
		t.Fatalf("expected empty result, got %v, %v", matches, err)
	}
	count, err := client.Count(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected zero count, got %d, %v", count, err)
	}
}

func TestNearestRetriesServerErrorsAndMarksTemporary(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	_, err := NewWithExecutor(server.URL, "exemplars", exec).Nearest(context.Background(), []float32{1}, 3)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}
