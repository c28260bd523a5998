package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/asafonov/docqa/internal/core/domain"
)

// ChunkRepository implements the chunk store on Postgres. Keyword search uses
// the generated tsvector column; vector scoring happens in the core.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	document_name TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding JSONB NOT NULL DEFAULT '[]'::jsonb,
	chunk_index INTEGER NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset INTEGER NOT NULL,
	content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_content_tsv ON chunks USING GIN(content_tsv);

CREATE TABLE IF NOT EXISTS document_clusters (
	document_id TEXT PRIMARY KEY,
	cluster_id INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const chunkColumns = `id, document_id, document_name, content, embedding, chunk_index, start_offset, end_offset`

func (r *ChunkRepository) ScanAll(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
ORDER BY document_id, chunk_index
`)
	if err != nil {
		return nil, fmt.Errorf("scan all chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepository) ScanByDocuments(ctx context.Context, documentIDs []string) ([]domain.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(documentIDs))
	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE document_id IN (`+strings.Join(placeholders, ",")+`)
ORDER BY document_id, chunk_index
`, args...)
	if err != nil {
		return nil, fmt.Errorf("scan chunks by documents: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepository) TextSearch(ctx context.Context, query string, limit int) ([]domain.KeywordHit, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, ts_rank(content_tsv, plainto_tsquery('english', $1)) AS score
FROM chunks
WHERE content_tsv @@ plainto_tsquery('english', $1)
ORDER BY score DESC, id ASC
LIMIT $2
`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var hits []domain.KeywordHit
	for rows.Next() {
		var hit domain.KeywordHit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword hits: %w", err)
	}
	return hits, nil
}

func (r *ChunkRepository) ListDocuments(ctx context.Context) ([]domain.DocumentRef, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT document_id, document_name
FROM chunks
ORDER BY document_name, document_id
`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var refs []domain.DocumentRef
	for rows.Next() {
		var ref domain.DocumentRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan document ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document refs: %w", err)
	}
	return refs, nil
}

// SaveClusterAssignments replaces the whole label set in one transaction.
// Assignments are recomputed wholesale, never patched.
func (r *ChunkRepository) SaveClusterAssignments(ctx context.Context, assignments []domain.ClusterAssignment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cluster tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_clusters`); err != nil {
		return fmt.Errorf("clear cluster assignments: %w", err)
	}

	now := time.Now().UTC()
	for _, assignment := range assignments {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO document_clusters (document_id, cluster_id, updated_at)
VALUES ($1, $2, $3)
`, assignment.DocumentID, assignment.ClusterID, now); err != nil {
			return fmt.Errorf("insert cluster assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cluster tx: %w", err)
	}
	return nil
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var embeddingRaw []byte
		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.DocumentName, &chunk.Content,
			&embeddingRaw, &chunk.ChunkIndex, &chunk.StartOffset, &chunk.EndOffset,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(embeddingRaw, &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}
