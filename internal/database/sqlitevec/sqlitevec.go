// Package sqlitevec provides a local file vector index on SQLite with the sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
)

func init() {
	database.RegisterBackend(database.BackendSQLite, func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Index, error) {
		return Open(ctx, Config{DBPath: cfg.SQLite.Path, Dimensions: cfg.Embedding.Dim}, logger)
	})
}

// Config holds configuration for the SQLite index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the length of the embedding vectors.
	Dimensions int
}

// Index stores embeddings in a vec0 virtual table using the cosine metric and labels in
// a regular table sharing the rowid.
type Index struct {
	db     *sql.DB
	dim    int
	logger *slog.Logger
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, c Config, logger *slog.Logger) (*Index, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions must be positive, got %d", c.Dimensions)
	}

	if c.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection so that ":memory:" databases are shared by all queries.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS face_labels (
			id INTEGER PRIMARY KEY,
			label TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating labels table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS face_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		c.Dimensions,
	)
	if _, err := db.ExecContext(ctx, createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec index opened",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Index{db: db, dim: c.Dimensions, logger: logger}, nil
}

// Backend returns the registry name.
func (x *Index) Backend() string { return database.BackendSQLite }

// Replace deletes all rows and inserts entries in one transaction.
func (x *Index) Replace(ctx context.Context, entries []database.ReferenceEntry) error {
	if err := database.ValidateEntries(entries, x.dim); err != nil {
		return err
	}
	entries = append([]database.ReferenceEntry(nil), entries...)
	database.AssignIDs(entries)

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM face_embeddings`); err != nil {
		return fmt.Errorf("clearing embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM face_labels`); err != nil {
		return fmt.Errorf("clearing labels: %w", err)
	}

	for _, e := range entries {
		blob, err := sqlite_vec.SerializeFloat32(e.Embedding)
		if err != nil {
			return fmt.Errorf("serializing embedding %d: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO face_labels(id, label, source) VALUES (?, ?, ?)`,
			e.ID, e.Label, e.Source,
		); err != nil {
			return fmt.Errorf("inserting label %d: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO face_embeddings(rowid, embedding) VALUES (?, ?)`,
			e.ID, blob,
		); err != nil {
			return fmt.Errorf("inserting embedding %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	x.logger.Debug("replaced sqlite-vec index", "count", len(entries))
	return nil
}

// Search runs a KNN query over the vec0 table. Scores are 1 - cosine distance.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]database.Neighbor, error) {
	if err := database.ValidateQuery(query, x.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []database.Neighbor{}, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serializing query embedding: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT
			l.id,
			l.label,
			l.source,
			e.embedding,
			e.distance
		FROM face_embeddings e
		INNER JOIN face_labels l ON l.id = e.rowid
		WHERE e.embedding MATCH ?
			AND e.k = ?
		ORDER BY e.distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	results := []database.Neighbor{}
	for rows.Next() {
		var n database.Neighbor
		var embBlob []byte
		var distance float64
		if err := rows.Scan(&n.Entry.ID, &n.Entry.Label, &n.Entry.Source, &embBlob, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		n.Entry.Embedding, err = deserializeFloat32(embBlob)
		if err != nil {
			return nil, err
		}
		n.Score = 1 - distance
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// Count returns the number of stored entries.
func (x *Index) Count(ctx context.Context) (int, error) {
	var count int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM face_labels`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return count, nil
}

// Labels returns all labels ordered by ID.
func (x *Index) Labels(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT label FROM face_labels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scanning label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating labels: %w", err)
	}
	return labels, nil
}

// Close releases the database handle.
func (x *Index) Close() error {
	return x.db.Close()
}
