package localfs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

const maxCollisionSuffix = 10000

// Storage places files under basePath. A file is written to a hidden temp file,
// synced and then hard-linked to its destination, so the destination either
// does not exist or holds the complete content. Existing files are never replaced.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/organized"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

func (s *Storage) BasePath() string {
	return s.basePath
}

func (s *Storage) Place(ctx context.Context, dir, name string, data []byte) (string, error) {
	const op = "place file"
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("invalid file name %q", name))
	}
	target, err := s.resolve(dir)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, op, err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", domain.WrapError(domain.ErrIO, op, fmt.Errorf("create directory: %w", err))
	}

	tempPath, err := writeTemp(target, data)
	if err != nil {
		return "", domain.WrapError(domain.ErrIO, op, err)
	}
	defer os.Remove(tempPath)

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxCollisionSuffix; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		dest := filepath.Join(target, candidate)
		err := os.Link(tempPath, dest)
		if err == nil {
			syncDir(target)
			return dest, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return "", domain.WrapError(domain.ErrIO, op, fmt.Errorf("link %s: %w", dest, err))
	}
	return "", domain.WrapError(domain.ErrIO, op, fmt.Errorf("no free name for %s after %d attempts", name, maxCollisionSuffix))
}

func (s *Storage) Remove(_ context.Context, path string) error {
	clean, err := s.resolve(path)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "remove file", err)
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrIO, "remove file", err)
	}
	return nil
}

// resolve returns an absolute path and rejects anything outside basePath.
func (s *Storage) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.basePath, path)
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(s.basePath, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return clean, nil
}

func writeTemp(dir string, data []byte) (string, error) {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("generate temp file name: %w", err)
	}
	tempPath := filepath.Join(dir, ".paperflow-"+hex.EncodeToString(randBytes)+".tmp")

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			file.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	success = true
	return tempPath, nil
}

// syncDir is best-effort; some platforms cannot fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
