package extractor

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractPlainTextStripsBOM(t *testing.T) {
	got, err := New().Extract(context.Background(), "notes.txt", []byte("\xef\xbb\xbf  Facture N 42 \n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Facture N 42" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestExtractImageYieldsEmptyText(t *testing.T) {
	got, err := New().Extract(context.Background(), "scan.JPG", []byte{0xff, 0xd8, 0xff})
	if err != nil || got != "" {
		t.Fatalf("expected empty text, got %q, %v", got, err)
	}
}

func TestExtractUnknownBinaryYieldsEmptyText(t *testing.T) {
	got, err := New().Extract(context.Background(), "blob.bin", []byte{0x00, 0xfe, 0xff, 0x80})
	if err != nil || got != "" {
		t.Fatalf("expected empty text, got %q, %v", got, err)
	}
}

func TestExtractXLSXReadsCells(t *testing.T) {
	book := excelize.NewFile()
	if err := book.SetCellValue("Sheet1", "A1", "Releve bancaire"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := book.SetCellValue("Sheet1", "B2", "1200.50"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := New().Extract(context.Background(), "statement.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(got, "Releve bancaire") || !strings.Contains(got, "1200.50") {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestExtractCorruptPDFFails(t *testing.T) {
	if _, err := New().Extract(context.Background(), "broken.pdf", []byte("%PDF-1.4 not really")); err == nil {
		t.Fatalf("expected error for corrupt pdf")
	}
}
