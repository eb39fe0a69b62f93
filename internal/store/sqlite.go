package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLite implements Store in a single SQLite table. Vectors are kept as
// little-endian float32 blobs.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a database at path and initializes the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps writes serialized and ":memory:" databases
	// shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := Init(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (namespace, id, repo_id, file_path, language, start_line, end_line, symbol_name, kind, ordinal, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			repo_id = excluded.repo_id,
			file_path = excluded.file_path,
			language = excluded.language,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			symbol_name = excluded.symbol_name,
			kind = excluded.kind,
			ordinal = excluded.ordinal,
			content = excluded.content,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		m := r.Metadata
		if _, err := stmt.ExecContext(ctx, namespace, r.ID, m.RepoID, m.FilePath, m.Language,
			m.StartLine, m.EndLine, m.SymbolName, m.Kind, m.Ordinal, m.Content, serializeVector(r.Vector)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

const metadataColumns = "id, repo_id, file_path, language, start_line, end_line, symbol_name, kind, ordinal, content"

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (Record, error) {
	var r Record
	m := &r.Metadata
	dest := []any{&r.ID, &m.RepoID, &m.FilePath, &m.Language, &m.StartLine, &m.EndLine, &m.SymbolName, &m.Kind, &m.Ordinal, &m.Content}
	err := row.Scan(append(dest, extra...)...)
	return r, err
}

func (s *SQLite) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if VectorExtensionAvailable {
		return s.queryVec(ctx, namespace, vector, k)
	}
	return s.queryScan(ctx, namespace, vector, k)
}

// queryVec ranks in SQL with sqlite-vec. vec_distance_cosine returns a
// distance, so similarity is 1 - distance.
func (s *SQLite) queryVec(ctx context.Context, namespace string, vector []float32, k int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+metadataColumns+`, 1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM vectors
		WHERE namespace = ?
		ORDER BY similarity DESC, id ASC
		LIMIT ?`, serializeVector(vector), namespace, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var score float64
		r, err := scanRecord(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		hits = append(hits, Hit{Record: r, Score: score})
	}
	return hits, rows.Err()
}

// queryScan loads the namespace and ranks in Go.
func (s *SQLite) queryScan(ctx context.Context, namespace string, vector []float32, k int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metadataColumns+`, embedding FROM vectors WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var blob []byte
		r, err := scanRecord(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		stored := deserializeVector(blob)
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d, stored has %d", ErrDimensionMismatch, len(vector), len(stored))
		}
		hits = append(hits, Hit{Record: r, Score: CosineSimilarity(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(hits, k), nil
}

func (s *SQLite) List(ctx context.Context, namespace string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metadataColumns+` FROM vectors WHERE namespace = ? ORDER BY file_path, ordinal, id`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors WHERE namespace = ?", namespace).Scan(&n)
	return n, err
}

func (s *SQLite) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE namespace = ?", namespace)
	return err
}

func (s *SQLite) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT namespace FROM vectors ORDER BY namespace")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func (s *SQLite) GetMeta(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

func (s *SQLite) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
