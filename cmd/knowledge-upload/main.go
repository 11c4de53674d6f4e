// knowledge-upload ingests a directory of text documents into the knowledge
// index: each file is chunked, embedded, and upserted. Re-running the upload
// over the same files replaces their chunks in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/urman-dev/leadbot/internal/genai"
	"github.com/urman-dev/leadbot/internal/knowledge"
)

// DefaultKnowledgeDir is where documents are read from when no flag is given.
const DefaultKnowledgeDir = "knowledge"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	dir := flag.String("dir", DefaultKnowledgeDir, "directory of documents to ingest")
	dbDSN := flag.String("db-dsn", os.Getenv("DATABASE_URL"), "knowledge database DSN (overrides $DATABASE_URL)")
	openaiKey := flag.String("openai-api-key", "", "OpenAI API key (overrides $OPENAI_API_KEY)")
	maxChunk := flag.Int("max-chunk", knowledge.DefaultMaxChunkLength, "maximum chunk length in bytes")
	flag.Parse()

	if err := run(*dir, *dbDSN, *openaiKey, *maxChunk); err != nil {
		slog.Error("knowledge upload failed", "error", err)
		os.Exit(1)
	}
}

func run(dir, dbDSN, openaiKey string, maxChunk int) error {
	if dbDSN == "" {
		return fmt.Errorf("no database DSN provided (set -db-dsn or $DATABASE_URL)")
	}

	var genaiOpts []genai.Option
	if openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(openaiKey))
	}
	genAI, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	index, err := openIndex(genAI, dbDSN)
	if err != nil {
		return err
	}
	defer index.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read documents directory: %w", err)
	}

	ctx := context.Background()
	total := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		count, err := uploadFile(ctx, index, genAI, dir, entry.Name(), maxChunk)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", entry.Name(), err)
		}
		total += count
	}

	slog.Info("knowledge upload complete", "files_seen", len(entries), "chunks_upserted", total)
	return nil
}

func openIndex(embedder knowledge.Embedder, dsn string) (knowledge.Index, error) {
	if knowledge.DetectDSNType(dsn) == "postgres" {
		return knowledge.NewPostgresIndex(embedder, knowledge.WithDSN(dsn))
	}
	return knowledge.NewSQLiteIndex(embedder, knowledge.WithDSN(dsn))
}

// uploadFile chunks one document and upserts every chunk. Chunk identifiers
// are deterministic ("<file>-chunk-<n>") so repeated uploads overwrite rather
// than duplicate.
func uploadFile(ctx context.Context, index knowledge.Index, embedder knowledge.Embedder, dir, name string, maxChunk int) (int, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, err
	}

	chunks := knowledge.ChunkText(string(raw), maxChunk)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for i, chunk := range chunks {
		embedding, err := embedder.Embed(ctx, chunk)
		if err != nil {
			return i, fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		id := fmt.Sprintf("%s-chunk-%d", base, i)
		if err := index.Upsert(ctx, id, name, i, chunk, embedding); err != nil {
			return i, fmt.Errorf("upserting chunk %d: %w", i, err)
		}
	}

	slog.Info("document ingested", "file", name, "chunks", len(chunks))
	return len(chunks), nil
}
