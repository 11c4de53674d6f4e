// Package knowledge provides the vector-indexed knowledge base used to ground
// generated replies. It supports a SQLite backend (ranked by the sqlite-vec
// extension) and a PostgreSQL backend (ranked in Go), both behind the same
// Retriever interface.
package knowledge

import (
	"context"
	"strings"
)

// Snippet is a retrieved knowledge-base fragment believed relevant to a query.
type Snippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// Retriever returns the snippets most relevant to a query, best first. An
// empty result is a valid response, not an error.
type Retriever interface {
	Query(ctx context.Context, text string, topK int) ([]Snippet, error)
}

// Embedder converts text to an embedding vector. Satisfied by the genai client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index extends Retriever with write access, used by the uploader.
type Index interface {
	Retriever
	Upsert(ctx context.Context, id, source string, chunkIndex int, body string, embedding []float32) error
	Close() error
}

// Opts holds configuration for index backends.
type Opts struct {
	DSN string
}

// Option configures an index backend.
type Option func(*Opts)

// WithDSN sets the database DSN (a file path for SQLite, a connection string
// for PostgreSQL).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
