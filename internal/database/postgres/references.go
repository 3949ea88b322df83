package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

// ReferenceDim is the vector dimension of the face_references.embedding column.
const ReferenceDim = 512

// ReferenceRepository implements database.Index on the face_references table.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a new PostgreSQL reference repository.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// Backend returns the registry name.
func (r *ReferenceRepository) Backend() string { return database.BackendPostgres }

// Replace truncates the table, restarting the ID sequence, and inserts entries in order
// within one transaction. Stored IDs are therefore 1..N.
func (r *ReferenceRepository) Replace(ctx context.Context, entries []database.ReferenceEntry) error {
	if err := database.ValidateEntries(entries, ReferenceDim); err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "TRUNCATE face_references RESTART IDENTITY"); err != nil {
		return fmt.Errorf("truncate face_references: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_references (label, source, embedding)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		vec := pgvector.NewVector(e.Embedding)
		if _, err := stmt.ExecContext(ctx, e.Label, e.Source, vec); err != nil {
			return fmt.Errorf("insert reference %s: %w", e.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.pool.logger.Debug("replaced face references", "count", len(entries))
	return nil
}

// Search orders by the negative inner product operator; the score is its negation.
func (r *ReferenceRepository) Search(ctx context.Context, query []float32, k int) ([]database.Neighbor, error) {
	if err := database.ValidateQuery(query, ReferenceDim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []database.Neighbor{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, label, source, embedding, embedding <#> $1::vector AS distance
		FROM face_references
		ORDER BY embedding <#> $1::vector, id
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query similar references: %w", err)
	}
	defer rows.Close()

	return scanNeighbors(rows)
}

func scanNeighbors(rows *sql.Rows) ([]database.Neighbor, error) {
	results := []database.Neighbor{}
	for rows.Next() {
		var n database.Neighbor
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(&n.Entry.ID, &n.Entry.Label, &n.Entry.Source, &vec, &distance); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		n.Entry.Embedding = vec.Slice()
		n.Score = -distance
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return results, nil
}

// Count returns the total number of references stored.
func (r *ReferenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_references").Scan(&count); err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return count, nil
}

// Labels returns all labels in ID order.
func (r *ReferenceRepository) Labels(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT label FROM face_references ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// Close closes the underlying pool.
func (r *ReferenceRepository) Close() error {
	return r.pool.Close()
}
