package spool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

const (
	looseFilePrefix = "file:"
	digestSeparator = "@"
	digestHexChars  = 16
)

// Source reads candidates from an inbox directory. Every sub-directory is one
// message whose files are its attachments; a file at the top level is a
// message of its own.
//
// Source ids are "<dir>@<digest>" and "file:<name>@<digest>", where digest
// covers the names and bytes of the message, so a later drop reusing a name
// is a new message.
type Source struct {
	root string
}

func New(root string) (*Source, error) {
	if root == "" {
		root = "./data/inbox"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	return &Source{root: root}, nil
}

func (s *Source) ListMessages(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hidden(e.Name()) {
			continue
		}
		var (
			id  string
			err error
		)
		switch {
		case e.IsDir():
			id, err = s.messageID(ctx, "", e.Name())
		case e.Type().IsRegular():
			id, err = s.messageID(ctx, looseFilePrefix, e.Name())
		default:
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			// Released or moved away while listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Source) FetchDocuments(ctx context.Context, sourceID string) ([]domain.CandidateDocument, error) {
	prefix, name, digest, err := parseID(sourceID)
	if err != nil {
		return nil, err
	}
	path, err := s.child(name)
	if err != nil {
		return nil, err
	}

	var paths []string
	subject := ""
	if prefix == looseFilePrefix {
		paths = []string{path}
	} else {
		subject = name
		if paths, err = messageFiles(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.WrapError(domain.ErrDocumentNotFound, "spool fetch", err)
			}
			return nil, fmt.Errorf("read message %s: %w", name, err)
		}
	}

	current, err := digestFiles(ctx, paths)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "spool fetch", err)
		}
		return nil, err
	}
	if current != digest {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "spool fetch", fmt.Errorf("message %s changed since listing", name))
	}

	docs := make([]domain.CandidateDocument, 0, len(paths))
	for _, p := range paths {
		doc, err := document(sourceID, subject, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Source) messageID(ctx context.Context, prefix, name string) (string, error) {
	path := filepath.Join(s.root, name)
	paths := []string{path}
	if prefix != looseFilePrefix {
		var err error
		if paths, err = messageFiles(path); err != nil {
			return "", err
		}
	}
	digest, err := digestFiles(ctx, paths)
	if err != nil {
		return "", err
	}
	return prefix + name + digestSeparator + digest, nil
}

func parseID(sourceID string) (prefix, name, digest string, err error) {
	rest := sourceID
	if trimmed, ok := strings.CutPrefix(sourceID, looseFilePrefix); ok {
		prefix, rest = looseFilePrefix, trimmed
	}
	i := strings.LastIndex(rest, digestSeparator)
	if i <= 0 || len(rest)-i-1 != digestHexChars {
		return "", "", "", domain.WrapError(domain.ErrInvalidInput, "spool fetch", fmt.Errorf("invalid source id %q", sourceID))
	}
	return prefix, rest[:i], rest[i+1:], nil
}

// messageFiles lists the visible regular files of a message directory by name.
func messageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if hidden(e.Name()) || !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

func digestFiles(ctx context.Context, paths []string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00", filepath.Base(p))
		f, err := os.Open(p)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", p, err)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:digestHexChars], nil
}

// Release removes the inbox copy, and the message directory once it is empty.
func (s *Source) Release(_ context.Context, doc domain.CandidateDocument) error {
	if doc.Path == "" {
		return nil
	}
	if err := os.Remove(doc.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release %s: %w", doc.Ref(), err)
	}
	dir := filepath.Dir(doc.Path)
	if filepath.Clean(dir) != filepath.Clean(s.root) {
		// Fails harmlessly while other attachments remain.
		_ = os.Remove(dir)
	}
	return nil
}

func (s *Source) child(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || hidden(name) {
		return "", domain.WrapError(domain.ErrInvalidInput, "spool fetch", fmt.Errorf("invalid source id %q", name))
	}
	return filepath.Join(s.root, name), nil
}

func document(sourceID, subject, path string) (domain.CandidateDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.CandidateDocument{}, domain.WrapError(domain.ErrDocumentNotFound, "spool fetch", err)
		}
		return domain.CandidateDocument{}, fmt.Errorf("stat %s: %w", path, err)
	}
	name := filepath.Base(path)
	return domain.CandidateDocument{
		SourceID:   sourceID,
		Filename:   name,
		MimeType:   mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		Subject:    subject,
		Path:       path,
		ReceivedAt: info.ModTime().UTC(),
	}, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
