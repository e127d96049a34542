package extractor

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor picks a format reader by file extension. Images and unknown
// binaries yield empty text so classification falls back to the filename.
type Extractor struct {
	maxPDFPages int
}

func New() *Extractor {
	return &Extractor{maxPDFPages: defaultMaxPDFPages}
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data, e.maxPDFPages)
	case ".xlsx", ".xlsm":
		return extractXLSX(data)
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".heic":
		return "", nil
	default:
		return extractPlainText(data), nil
	}
}

func extractPlainText(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
