package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

const (
	maxFilenameBytes = 255
	// Room for the "_NNNN" collision suffix added by the file store.
	collisionHeadroom = 5
	maxExtensionBytes = 16
)

// FileOrganizer files a document under root/<label>/<YYYY-MM>/.
type FileOrganizer struct {
	root  string
	files ports.FileStore
	dates *DateResolver
}

func NewFileOrganizer(root string, files ports.FileStore, dates *DateResolver) *FileOrganizer {
	if dates == nil {
		dates = NewDateResolver()
	}
	return &FileOrganizer{root: root, files: files, dates: dates}
}

// Plan computes the destination directory and file name before collision handling.
func (o *FileOrganizer) Plan(ctx context.Context, doc domain.CandidateDocument, label domain.Label, text string) (string, string) {
	date := o.dates.ResolveContext(ctx, doc.Filename, text, doc.ReceivedAt)
	dir := filepath.Join(o.root, string(label), date.Format("2006-01"))
	prefix := fmt.Sprintf("%s_%s_", label, date.Format("20060102"))
	return dir, prefix + fitFilename(len(prefix), sanitizeFilename(doc.Filename))
}

func (o *FileOrganizer) Organize(ctx context.Context, doc domain.CandidateDocument, label domain.Label, text string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrIO, "organize document", errors.New("empty document content"))
	}
	dir, name := o.Plan(ctx, doc, label, text)
	path, err := o.files.Place(ctx, dir, name, data)
	if err != nil {
		if domain.IsKind(err, domain.ErrIO) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrIO, "organize document", err)
	}
	return path, nil
}

// Discard removes a file placed by Organize whose registration could not be recorded.
func (o *FileOrganizer) Discard(ctx context.Context, path string) error {
	return o.files.Remove(ctx, path)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "document.bin"
	}
	return base
}


// fitFilename truncates the stem of a sanitized name so that prefixLen plus the
// result plus collision headroom stays within maxFilenameBytes. The extension
// is kept unless it is implausibly long.
func fitFilename(prefixLen int, name string) string {
	budget := maxFilenameBytes - collisionHeadroom - prefixLen
	if len(name) <= budget {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxExtensionBytes || len(ext) >= budget {
		ext = ""
	}
	keep := max(budget-len(ext), 1)
	return name[:keep] + ext
}
