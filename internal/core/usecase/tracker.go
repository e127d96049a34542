package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

const (
	BucketIdentity = "identity"
	BucketContent  = "content"
)

// IdentityTracker remembers which source messages were already ingested.
type IdentityTracker struct {
	store ports.KeyValueStore
	now   func() time.Time
}

func NewIdentityTracker(store ports.KeyValueStore) *IdentityTracker {
	return &IdentityTracker{store: store, now: time.Now}
}

func (t *IdentityTracker) IsNew(ctx context.Context, sourceID string) (bool, error) {
	if strings.TrimSpace(sourceID) == "" {
		return false, domain.WrapError(domain.ErrInvalidInput, "identity lookup", errors.New("empty source id"))
	}
	_, found, err := t.store.Get(ctx, BucketIdentity, sourceID)
	if err != nil {
		return false, domain.WrapError(domain.ErrStoreUnavailable, "identity lookup", err)
	}
	return !found, nil
}

// MarkProcessed records sourceID. Repeated calls keep the first record.
func (t *IdentityTracker) MarkProcessed(ctx context.Context, sourceID string, record domain.SourceRecord) error {
	if strings.TrimSpace(sourceID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "identity mark", errors.New("empty source id"))
	}
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = t.now().UTC()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal source record: %w", err)
	}
	if _, err := t.store.Put(ctx, BucketIdentity, sourceID, payload); err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "identity mark", err)
	}
	if err := t.store.Flush(ctx); err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "identity flush", err)
	}
	return nil
}

// Prune removes identity records older than olderThanDays. It requires a store
// supporting ports.PrunableStore.
func (t *IdentityTracker) Prune(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "identity prune", errors.New("retention must be at least one day"))
	}
	store, ok := t.store.(ports.PrunableStore)
	if !ok {
		return 0, domain.WrapError(domain.ErrInvalidInput, "identity prune", errors.New("store does not support retention"))
	}

	cutoff := t.now().UTC().AddDate(0, 0, -olderThanDays)
	var expired []string
	err := store.Scan(ctx, BucketIdentity, func(key string, value []byte) error {
		var record domain.SourceRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil
		}
		if record.ProcessedAt.Before(cutoff) {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrStoreUnavailable, "identity prune scan", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := store.Delete(ctx, BucketIdentity, expired...); err != nil {
		return 0, domain.WrapError(domain.ErrStoreUnavailable, "identity prune delete", err)
	}
	if err := store.Flush(ctx); err != nil {
		return 0, domain.WrapError(domain.ErrStoreUnavailable, "identity prune flush", err)
	}
	return len(expired), nil
}
