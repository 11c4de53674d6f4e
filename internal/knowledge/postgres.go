// Package knowledge provides the vector-indexed knowledge base.
//
// This file implements the PostgreSQL-backed index. Embeddings are stored as
// JSON arrays and ranked by cosine similarity computed in Go: company
// knowledge bases here are small enough that a brute-force scan is fine.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

// candidateScanLimit caps how many rows a Query fetches for in-process ranking.
const candidateScanLimit = 2000

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresIndex is a knowledge index stored in PostgreSQL.
type PostgresIndex struct {
	db       *sql.DB
	embedder Embedder
}

// NewPostgresIndex opens a PostgreSQL-backed knowledge index.
func NewPostgresIndex(embedder Embedder, opts ...Option) (*PostgresIndex, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("knowledge.NewPostgresIndex: opening index", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("knowledge.NewPostgresIndex: DSN not set")
		return nil, fmt.Errorf("knowledge index DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("knowledge.NewPostgresIndex: failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("knowledge.NewPostgresIndex: Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("knowledge.NewPostgresIndex: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("knowledge.NewPostgresIndex: migrations applied")

	return &PostgresIndex{db: db, embedder: embedder}, nil
}

// Query implements Retriever.
func (p *PostgresIndex) Query(ctx context.Context, text string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = 3
	}

	queryVec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		slog.Error("knowledge.PostgresIndex.Query: embedding failed", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT body, source, embedding FROM snippets LIMIT $1`, candidateScanLimit)
	if err != nil {
		slog.Error("knowledge.PostgresIndex.Query: candidate fetch failed", "error", err)
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close()

	var snippets []Snippet
	for rows.Next() {
		var sn Snippet
		var embeddingJSON []byte
		if err := rows.Scan(&sn.Text, &sn.Source, &embeddingJSON); err != nil {
			slog.Error("knowledge.PostgresIndex.Query: scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan snippet row: %w", err)
		}
		var embedding []float32
		if err := json.Unmarshal(embeddingJSON, &embedding); err != nil {
			slog.Error("knowledge.PostgresIndex.Query: bad embedding payload, skipping row", "error", err, "source", sn.Source)
			continue
		}
		sn.Score = cosineSimilarity(queryVec, embedding)
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		slog.Error("knowledge.PostgresIndex.Query: rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate snippet rows: %w", err)
	}

	sort.Slice(snippets, func(i, j int) bool { return snippets[i].Score > snippets[j].Score })
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}

	slog.Debug("knowledge.PostgresIndex.Query: search succeeded", "count", len(snippets), "topK", topK)
	return snippets, nil
}

// Upsert implements Index.
func (p *PostgresIndex) Upsert(ctx context.Context, id, source string, chunkIndex int, body string, embedding []float32) error {
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO snippets (id, source, chunk_index, body, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index,
			body = EXCLUDED.body,
			embedding = EXCLUDED.embedding`,
		id, source, chunkIndex, body, embeddingJSON)
	if err != nil {
		slog.Error("knowledge.PostgresIndex.Upsert: failed", "error", err, "id", id, "source", source)
		return fmt.Errorf("failed to upsert snippet %s: %w", id, err)
	}
	slog.Debug("knowledge.PostgresIndex.Upsert: succeeded", "id", id, "source", source, "chunkIndex", chunkIndex)
	return nil
}

// Close closes the underlying database connection.
func (p *PostgresIndex) Close() error {
	slog.Debug("knowledge.PostgresIndex: closing database connection")
	return p.db.Close()
}

// cosineSimilarity computes the cosine similarity of two vectors. Mismatched
// or zero-length vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
