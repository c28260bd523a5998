package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asafonov/docqa/internal/core/domain"
)

// ChatRepository persists threads, messages, and the search analytics log.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chat_threads (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_thread_id ON chat_messages(thread_id, created_at);

CREATE TABLE IF NOT EXISTS search_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL,
	chunk_count INTEGER NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	duration_ms DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_logs_created_at ON search_logs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ChatRepository) CreateThread(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_threads (id, user_id, created_at)
VALUES ($1, $2, $3)
`, id, userID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert thread: %w", err)
	}
	return id, nil
}

func (r *ChatRepository) AddMessage(ctx context.Context, message domain.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, thread_id, user_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, message.ID, message.ThreadID, message.UserID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *ChatRepository) LogSearchQuery(ctx context.Context, entry domain.SearchLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO search_logs (id, user_id, thread_id, query, query_type, chunk_count, confidence, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, entry.ID, entry.UserID, entry.ThreadID, entry.Query, string(entry.QueryType),
		entry.ChunkCount, entry.Confidence, entry.DurationMS, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}
	return nil
}
