package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

func TestWriteXLSXContainsSummaryAndDocuments(t *testing.T) {
	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	summary := domain.NewRunSummary("01J0RUN", started)
	summary.Record(domain.DocumentOutcome{SourceID: "m1", Filename: "facture.pdf", State: domain.StateOrganized, Label: domain.LabelInvoice, DestinationPath: "/org/invoice/2025-05/a.pdf"})
	summary.Record(domain.DocumentOutcome{SourceID: "m2", Filename: "copy.pdf", State: domain.StateSkippedDuplicate, DuplicateOf: "/org/invoice/2025-05/a.pdf"})
	summary.Abort(errors.New("store unavailable"), started.Add(time.Minute))

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, summary); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer book.Close()

	if got, _ := book.GetCellValue(summarySheet, "B4"); got != "aborted" {
		t.Fatalf("expected aborted status, got %q", got)
	}
	if got, _ := book.GetCellValue(summarySheet, "B10"); got != "store unavailable" {
		t.Fatalf("expected error row, got %q", got)
	}
	rows, err := book.GetRows(documentsSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 || rows[1][2] != "organized" || rows[2][2] != "skipped-duplicate" {
		t.Fatalf("unexpected document rows: %v", rows)
	}
	if got, _ := book.GetCellValue(labelsSheet, "A2"); got != "invoice" {
		t.Fatalf("expected invoice label row, got %q", got)
	}
}

func TestWriteXLSXRejectsNilSummary(t *testing.T) {
	if err := WriteXLSX(&bytes.Buffer{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
