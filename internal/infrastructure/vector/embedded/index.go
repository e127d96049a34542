package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

type entry struct {
	match  domain.ExemplarMatch
	vector []float32
	norm   float64
}

// Index keeps the exemplar corpus in the exemplars table of the state database
// and scores candidates in process. Rows are cached until the corpus
// generation changes, whichever handle replaced it.
type Index struct {
	db *sql.DB

	mu         sync.RWMutex
	cache      []entry
	generation int64
	loaded     bool
}

func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

func (i *Index) Nearest(ctx context.Context, vector []float32, k int) ([]domain.ExemplarMatch, error) {
	if k <= 0 || len(vector) == 0 {
		return []domain.ExemplarMatch{}, nil
	}
	entries, err := i.entries(ctx)
	if err != nil {
		return nil, err
	}

	queryNorm := norm(vector)
	scored := make([]domain.ExemplarMatch, 0, len(entries))
	for _, e := range entries {
		if len(e.vector) != len(vector) {
			continue
		}
		m := e.match
		m.Score = cosine(vector, e.vector, queryNorm, e.norm)
		scored = append(scored, m)
	}
	slices.SortStableFunc(scored, func(a, b domain.ExemplarMatch) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (i *Index) Replace(ctx context.Context, exemplars []domain.Exemplar) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exemplar replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exemplars`); err != nil {
		return fmt.Errorf("clear exemplars: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exemplars (id, label, source_filename, snippet, dim, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare exemplar insert: %w", err)
	}
	defer stmt.Close()

	for _, ex := range exemplars {
		if len(ex.Vector) == 0 {
			return fmt.Errorf("exemplar %s has no vector", ex.ID)
		}
		if _, err := stmt.ExecContext(ctx, ex.ID, string(ex.Label), ex.SourceFilename, ex.Snippet, len(ex.Vector), encodeVector(ex.Vector)); err != nil {
			return fmt.Errorf("insert exemplar %s: %w", ex.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE exemplar_generation SET generation = generation + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump exemplar generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exemplar replace: %w", err)
	}

	i.cache = nil
	i.loaded = false
	return nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exemplars`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exemplars: %w", err)
	}
	return n, nil
}

func (i *Index) entries(ctx context.Context) ([]entry, error) {
	current, err := i.currentGeneration(ctx, i.db)
	if err != nil {
		return nil, err
	}

	i.mu.RLock()
	if i.loaded && i.generation == current {
		cached := i.cache
		i.mu.RUnlock()
		return cached, nil
	}
	i.mu.RUnlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.loaded && i.generation == current {
		return i.cache, nil
	}

	// Generation and rows are read from one snapshot.
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin exemplar load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	generation, err := i.currentGeneration(ctx, tx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT id, label, source_filename, vector FROM exemplars ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}
	defer rows.Close()

	var loaded []entry
	for rows.Next() {
		var (
			id, label, filename string
			blob                []byte
		)
		if err := rows.Scan(&id, &label, &filename, &blob); err != nil {
			return nil, fmt.Errorf("scan exemplar: %w", err)
		}
		vec := decodeVector(blob)
		loaded = append(loaded, entry{
			match: domain.ExemplarMatch{
				ExemplarID:     id,
				Label:          domain.Label(label),
				SourceFilename: filename,
			},
			vector: vec,
			norm:   norm(vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exemplars: %w", err)
	}

	i.cache = loaded
	i.generation = generation
	i.loaded = true
	return loaded, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (i *Index) currentGeneration(ctx context.Context, q queryer) (int64, error) {
	var generation int64
	if err := q.QueryRowContext(ctx, `SELECT generation FROM exemplar_generation WHERE id = 1`).Scan(&generation); err != nil {
		return 0, fmt.Errorf("read exemplar generation: %w", err)
	}
	return generation, nil
}
