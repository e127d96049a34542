package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

func writeTrainingFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCorpusRebuildLabelsAndReplacesIndex(t *testing.T) {
	dir := t.TempDir()
	writeTrainingFile(t, filepath.Join(dir, "payroll", "scan_001.pdf"), "Net a payer")
	writeTrainingFile(t, filepath.Join(dir, "facture_edf.txt"), "electricite")
	writeTrainingFile(t, filepath.Join(dir, "misc", "memo.txt"), "Relevé de compte bancaire")
	writeTrainingFile(t, filepath.Join(dir, "unknown.txt"), "lorem ipsum")
	writeTrainingFile(t, filepath.Join(dir, ".DS_Store"), "junk")

	index := &indexFake{}
	builder := NewCorpusBuilder(domain.DefaultTaxonomy(), &extractorFake{}, &embedderFake{vector: []float32{0.1, 0.2}}, index, nil)

	stats, err := builder.Rebuild(context.Background(), dir)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.Exemplars != 4 || len(index.replaced) != 4 {
		t.Fatalf("expected 4 exemplars, got stats=%+v replaced=%d", stats, len(index.replaced))
	}

	labels := map[string]domain.Label{}
	for _, ex := range index.replaced {
		labels[ex.SourceFilename] = ex.Label
		if len(ex.Vector) != 2 || ex.ID == "" {
			t.Fatalf("exemplar %s missing vector or id", ex.SourceFilename)
		}
	}
	want := map[string]domain.Label{
		"scan_001.pdf":    domain.LabelPayroll,
		"facture_edf.txt": domain.LabelInvoice,
		"memo.txt":        domain.LabelStatement,
		"unknown.txt":     domain.LabelOther,
	}
	for name, label := range want {
		if labels[name] != label {
			t.Fatalf("label for %s = %q, want %q", name, labels[name], label)
		}
	}
}

func TestCorpusRebuildRejectsEmptyDirectory(t *testing.T) {
	index := &indexFake{}
	builder := NewCorpusBuilder(domain.DefaultTaxonomy(), &extractorFake{}, &embedderFake{}, index, nil)

	_, err := builder.Rebuild(context.Background(), t.TempDir())
	if !domain.IsKind(err, domain.ErrIndexEmpty) {
		t.Fatalf("expected empty index error, got %v", err)
	}
	if index.replaced != nil {
		t.Fatalf("existing index must not be replaced, got %d exemplars", len(index.replaced))
	}
}
