package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"echograph/internal/config"
	"echograph/internal/logger"
	"echograph/internal/vectorstore"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id             BIGSERIAL PRIMARY KEY,
	title          TEXT NOT NULL,
	document_type  TEXT NOT NULL CHECK (document_type IN ('norm', 'guideline')),
	file_path      TEXT NOT NULL,
	file_type      TEXT NOT NULL,
	file_size      BIGINT NOT NULL DEFAULT 0,
	author         TEXT,
	category       TEXT,
	tags           TEXT[] NOT NULL DEFAULT '{}',
	description    TEXT,
	version        TEXT,
	status         TEXT NOT NULL DEFAULT 'uploading',
	error_message  TEXT,
	upload_date    TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_date TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_title ON documents (title);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents (document_type);
CREATE INDEX IF NOT EXISTS idx_documents_category ON documents (category);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);
CREATE INDEX IF NOT EXISTS idx_documents_upload_date ON documents (upload_date DESC);

CREATE TABLE IF NOT EXISTS document_chunks (
	id            BIGSERIAL PRIMARY KEY,
	doc_id        BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index   INTEGER NOT NULL,
	chunk_text    TEXT NOT NULL,
	char_count    INTEGER NOT NULL,
	section_title TEXT,
	section_level INTEGER,
	page_number   INTEGER,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (doc_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON document_chunks (doc_id);

CREATE TABLE IF NOT EXISTS document_relationships (
	id                BIGSERIAL PRIMARY KEY,
	source_doc_id     BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	target_doc_id     BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	summary           TEXT NOT NULL DEFAULT '',
	details           JSONB,
	validation_status TEXT NOT NULL DEFAULT 'auto_detected',
	validated_by      TEXT,
	validation_notes  TEXT,
	validated_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_doc_id, target_doc_id),
	CHECK (source_doc_id <> target_doc_id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON document_relationships (source_doc_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON document_relationships (target_doc_id);
CREATE INDEX IF NOT EXISTS idx_relationships_review ON document_relationships (validation_status, created_at);

CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	subject    TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL,
	full_name  TEXT,
	role       TEXT NOT NULL DEFAULT 'viewer',
	is_active  BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  up      - Create tables, indexes and vector collections")
		fmt.Println("  verify  - Check that all tables and collections exist")
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := config.NewPostgresPool(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	vectors, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to vector index: %v", err)
	}
	defer vectors.Close()

	switch command {
	case "up":
		if err := migrateUp(ctx, pool, vectors, cfg.EmbeddingDim); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Migration completed successfully!")

	case "verify":
		if err := verify(ctx, pool, vectors); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Println("Verification completed successfully!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func migrateUp(ctx context.Context, pool *pgxpool.Pool, vectors *vectorstore.Store, dim int) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	fmt.Println("Tables and indexes created")

	if err := vectors.Init(ctx, dim); err != nil {
		return fmt.Errorf("failed to create vector collections: %w", err)
	}
	fmt.Printf("Vector collections created (dim=%d)\n", dim)
	return nil
}

func verify(ctx context.Context, pool *pgxpool.Pool, vectors *vectorstore.Store) error {
	tables := []string{"documents", "document_chunks", "document_relationships", "users"}
	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %q: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %q is missing", table)
		}
		fmt.Printf("  table %s: ok\n", table)
	}

	for _, name := range []string{vectorstore.CollectionDocuments, vectorstore.CollectionChunks} {
		stats, err := vectors.CollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("collection %q is missing: %w", name, err)
		}
		fmt.Printf("  collection %s: %s (%d points)\n", name, stats.Status, stats.PointsCount)
	}
	return nil
}
