package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestPlaceNeverOverwrites(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	dir := filepath.Join(s.BasePath(), "invoice", "2024-01")

	first, err := s.Place(ctx, dir, "invoice_20240105_bill.pdf", []byte("first"))
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	second, err := s.Place(ctx, dir, "invoice_20240105_bill.pdf", []byte("second"))
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if filepath.Base(second) != "invoice_20240105_bill_1.pdf" {
		t.Fatalf("expected suffixed name, got %s", second)
	}

	got, _ := os.ReadFile(first)
	if string(got) != "first" {
		t.Fatalf("existing file was modified: %q", got)
	}
	got, _ = os.ReadFile(second)
	if string(got) != "second" {
		t.Fatalf("unexpected content in %s: %q", second, got)
	}
}

func TestPlaceLeavesNoTempFiles(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Place(context.Background(), "receipt/2024-02", "r.jpg", []byte("x")); err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(s.BasePath(), "receipt", "2024-02"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
}

func TestPlaceAcceptsMaximumLengthNames(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	name := strings.Repeat("a", 246) + ".pdf"

	first, err := s.Place(ctx, "statement/2024-03", name, []byte("one"))
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	second, err := s.Place(ctx, "statement/2024-03", name, []byte("two"))
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if filepath.Base(first) != name || filepath.Base(second) != strings.Repeat("a", 246)+"_1.pdf" {
		t.Fatalf("unexpected names %q and %q", filepath.Base(first), filepath.Base(second))
	}
}

func TestPlaceConcurrentWritersGetDistinctNames(t *testing.T) {
	s := newTestStorage(t)
	const writers = 8

	var wg sync.WaitGroup
	paths := make(chan string, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Place(context.Background(), "contract/2024-03", "c.pdf", []byte("same"))
			if err != nil {
				t.Errorf("Place() error = %v", err)
				return
			}
			paths <- p
		}()
	}
	wg.Wait()
	close(paths)

	seen := map[string]bool{}
	for p := range paths {
		if seen[p] {
			t.Fatalf("duplicate destination %s", p)
		}
		seen[p] = true
	}
	if len(seen) != writers {
		t.Fatalf("expected %d files, got %d", writers, len(seen))
	}
}

func TestPlaceRejectsEscapingPaths(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Place(context.Background(), "../outside", "x.pdf", []byte("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	_, err = s.Place(context.Background(), "other", "../x.pdf", []byte("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for name, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p, err := s.Place(ctx, "other/2024-04", "a.txt", []byte("a"))
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if err := s.Remove(ctx, p); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
	if err := s.Remove(ctx, p); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
}
