package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KVStore implements ports.PrunableStore on the kv_records table. Every write is
// committed before it returns, so Flush has nothing left to do.
type KVStore struct {
	db *sql.DB
}

func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_records WHERE bucket = ? AND key = ?`,
		bucket, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s/%s: %w", bucket, key, err)
	}
	return value, true, nil
}

func (s *KVStore) Put(ctx context.Context, bucket, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_records (bucket, key, value, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(bucket, key) DO NOTHING`,
		bucket, key, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite put %s/%s: %w", bucket, key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite put rows affected: %w", err)
	}
	return affected == 1, nil
}

// Flush folds committed WAL frames back into the main database file.
func (s *KVStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("sqlite flush: %w", err)
	}
	return nil
}

func (s *KVStore) Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv_records WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return fmt.Errorf("sqlite scan %s: %w", bucket, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("sqlite scan row: %w", err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *KVStore) Delete(ctx context.Context, bucket string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const batch = 500
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		chunk := keys[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, bucket)
		for _, k := range chunk {
			args = append(args, k)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := `DELETE FROM kv_records WHERE bucket = ? AND key IN (` + placeholders + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlite delete %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit delete: %w", err)
	}
	return nil
}
