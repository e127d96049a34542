package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

// ContentDeduplicator detects byte-identical files regardless of name or source.
type ContentDeduplicator struct {
	store ports.KeyValueStore
	now   func() time.Time
}

func NewContentDeduplicator(store ports.KeyValueStore) *ContentDeduplicator {
	return &ContentDeduplicator{store: store, now: time.Now}
}

// Fingerprint is the lowercase hex SHA-256 of data.
func (d *ContentDeduplicator) Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsDuplicate returns the path already registered for digest, if any.
func (d *ContentDeduplicator) IsDuplicate(ctx context.Context, digest string) (string, bool, error) {
	raw, found, err := d.store.Get(ctx, BucketContent, digest)
	if err != nil {
		return "", false, domain.WrapError(domain.ErrStoreUnavailable, "content lookup", err)
	}
	if !found {
		return "", false, nil
	}
	var record domain.ContentRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", false, fmt.Errorf("decode content record %s: %w", digest, err)
	}
	return record.Path, true, nil
}

// Register records path as the organized copy of digest. When another writer
// registered digest first, it returns that writer's path with registered=false.
func (d *ContentDeduplicator) Register(ctx context.Context, digest, path string) (string, bool, error) {
	payload, err := json.Marshal(domain.ContentRecord{Path: path, RegisteredAt: d.now().UTC()})
	if err != nil {
		return "", false, fmt.Errorf("marshal content record: %w", err)
	}
	inserted, err := d.store.Put(ctx, BucketContent, digest, payload)
	if err != nil {
		return "", false, domain.WrapError(domain.ErrStoreUnavailable, "content register", err)
	}
	if !inserted {
		existing, found, err := d.IsDuplicate(ctx, digest)
		if err != nil {
			return "", false, err
		}
		if !found {
			return "", false, domain.WrapError(domain.ErrStoreUnavailable, "content register", fmt.Errorf("record for %s vanished after a rejected write", digest))
		}
		return existing, false, nil
	}
	if err := d.store.Flush(ctx); err != nil {
		return "", false, domain.WrapError(domain.ErrStoreUnavailable, "content flush", err)
	}
	return path, true, nil
}
