// Package knowledge provides the vector-indexed knowledge base.
//
// This file implements the SQLite-backed index. Ranking uses the sqlite-vec
// extension's vec_distance_cosine over little-endian float32 blobs.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteIndex is a knowledge index stored in a SQLite database file.
type SQLiteIndex struct {
	db       *sql.DB
	embedder Embedder
}

// NewSQLiteIndex opens (creating if needed) a SQLite-backed knowledge index.
// The DSN is a file path; its directory is created when missing.
func NewSQLiteIndex(embedder Embedder, opts ...Option) (*SQLiteIndex, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("knowledge.NewSQLiteIndex: opening index", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("knowledge.NewSQLiteIndex: DSN not set")
		return nil, fmt.Errorf("knowledge index DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("knowledge.NewSQLiteIndex: failed to create index directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("knowledge.NewSQLiteIndex: failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("knowledge.NewSQLiteIndex: SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("knowledge.NewSQLiteIndex: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("knowledge.NewSQLiteIndex: migrations applied")

	return &SQLiteIndex{db: db, embedder: embedder}, nil
}

// Query implements Retriever. The query text is embedded and snippets are
// ranked by cosine distance ascending.
func (s *SQLiteIndex) Query(ctx context.Context, text string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = 3
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		slog.Error("knowledge.SQLiteIndex.Query: embedding failed", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT body, source, vec_distance_cosine(embedding, ?) AS distance
		FROM snippets
		ORDER BY distance ASC
		LIMIT ?`, encodeFloat32Blob(vec), topK)
	if err != nil {
		slog.Error("knowledge.SQLiteIndex.Query: search failed", "error", err)
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close()

	var snippets []Snippet
	for rows.Next() {
		var sn Snippet
		var distance float64
		if err := rows.Scan(&sn.Text, &sn.Source, &distance); err != nil {
			slog.Error("knowledge.SQLiteIndex.Query: scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan snippet row: %w", err)
		}
		// Cosine distance is 1 - similarity.
		sn.Score = 1.0 - distance
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		slog.Error("knowledge.SQLiteIndex.Query: rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate snippet rows: %w", err)
	}

	slog.Debug("knowledge.SQLiteIndex.Query: search succeeded", "count", len(snippets), "topK", topK)
	return snippets, nil
}

// Upsert implements Index.
func (s *SQLiteIndex) Upsert(ctx context.Context, id, source string, chunkIndex int, body string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snippets (id, source, chunk_index, body, embedding)
		VALUES (?, ?, ?, ?, ?)`, id, source, chunkIndex, body, encodeFloat32Blob(embedding))
	if err != nil {
		slog.Error("knowledge.SQLiteIndex.Upsert: failed", "error", err, "id", id, "source", source)
		return fmt.Errorf("failed to upsert snippet %s: %w", id, err)
	}
	slog.Debug("knowledge.SQLiteIndex.Upsert: succeeded", "id", id, "source", source, "chunkIndex", chunkIndex)
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteIndex) Close() error {
	slog.Debug("knowledge.SQLiteIndex: closing database connection")
	return s.db.Close()
}

// encodeFloat32Blob encodes a float32 slice as the little-endian binary blob
// format expected by sqlite-vec.
func encodeFloat32Blob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
