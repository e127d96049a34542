// Package report renders run summaries as spreadsheets.
package report

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

const (
	summarySheet   = "Summary"
	documentsSheet = "Documents"
	labelsSheet    = "Labels"
)

var documentColumns = []string{"Source", "Filename", "State", "Label", "Tier", "Method", "Destination", "Duplicate of", "Error"}

// WriteXLSX writes a three-sheet workbook for one run.
func WriteXLSX(w io.Writer, summary *domain.RunSummary) error {
	if summary == nil {
		return fmt.Errorf("write xlsx report: nil summary")
	}
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if err := writeSummary(book, summary); err != nil {
		return err
	}
	if _, err := book.NewSheet(documentsSheet); err != nil {
		return fmt.Errorf("create documents sheet: %w", err)
	}
	if err := writeDocuments(book, summary.Documents); err != nil {
		return err
	}
	if _, err := book.NewSheet(labelsSheet); err != nil {
		return fmt.Errorf("create labels sheet: %w", err)
	}
	if err := writeLabels(book, summary.ByLabel); err != nil {
		return err
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("write xlsx report: %w", err)
	}
	return nil
}

func writeSummary(book *excelize.File, s *domain.RunSummary) error {
	rows := [][]any{
		{"Run ID", s.RunID},
		{"Started", s.StartedAt.Format(time.RFC3339)},
		{"Finished", s.FinishedAt.Format(time.RFC3339)},
		{"Status", string(s.Status)},
		{"Organized", s.Organized},
		{"Skipped (duplicate)", s.SkippedDuplicate},
		{"Skipped (already processed)", s.SkippedIdentity},
		{"Failed", s.Failed},
		{"Total", s.Total()},
	}
	if s.Error != "" {
		rows = append(rows, []any{"Error", s.Error})
	}
	for i, row := range rows {
		if err := setRow(book, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func writeDocuments(book *excelize.File, docs []domain.DocumentOutcome) error {
	header := make([]any, len(documentColumns))
	for i, c := range documentColumns {
		header[i] = c
	}
	if err := setRow(book, documentsSheet, 1, header); err != nil {
		return err
	}
	for i, d := range docs {
		row := []any{
			d.SourceID, d.Filename, string(d.State), string(d.Label), string(d.Tier),
			string(d.Method), d.DestinationPath, d.DuplicateOf, d.Error,
		}
		if err := setRow(book, documentsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeLabels(book *excelize.File, byLabel map[domain.Label]int) error {
	if err := setRow(book, labelsSheet, 1, []any{"Label", "Organized"}); err != nil {
		return err
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, string(l))
	}
	slices.Sort(labels)
	for i, l := range labels {
		if err := setRow(book, labelsSheet, i+2, []any{l, byLabel[domain.Label(l)]}); err != nil {
			return err
		}
	}
	return nil
}

func setRow(book *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := book.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
