package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists chunk metadata and content in a single sqlite file.
// It is the reference ChunkStore used by the CLI and tests; production
// deployments can substitute any backend satisfying the interface.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	tenant_id        TEXT NOT NULL,
	id               TEXT NOT NULL,
	document_id      TEXT NOT NULL,
	chunk_index      INTEGER NOT NULL,
	text             TEXT NOT NULL,
	document_section TEXT NOT NULL DEFAULT '',
	chunk_type       TEXT NOT NULL DEFAULT '',
	topics           TEXT NOT NULL DEFAULT '[]',
	keywords         TEXT NOT NULL DEFAULT '[]',
	entities         TEXT NOT NULL DEFAULT '[]',
	heading_context  TEXT NOT NULL DEFAULT '[]',
	audience         TEXT NOT NULL DEFAULT '[]',
	question_types   TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (tenant_id, document_id, chunk_index);
`

// OpenSQLiteStore opens or creates the database at path and applies the
// schema. WAL mode keeps concurrent readers from blocking the seed path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open chunk db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply chunk schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) ListChunkMetadata(ctx context.Context, tenantID string) ([]ChunkMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, document_section, chunk_type,
		       topics, keywords, entities, heading_context, audience, question_types
		FROM chunks WHERE tenant_id = ?
		ORDER BY document_id, chunk_index`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkMetadata
	for rows.Next() {
		var m ChunkMetadata
		var topics, keywords, entities, headings, audience, questions string
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.ChunkIndex, &m.DocumentSection, &m.ChunkType,
			&topics, &keywords, &entities, &headings, &audience, &questions); err != nil {
			return nil, err
		}
		m.Topics = decodeStrings(topics)
		m.Keywords = decodeStrings(keywords)
		m.Entities = decodeStrings(entities)
		m.HeadingContext = decodeStrings(headings)
		m.Audience = decodeStrings(audience)
		m.QuestionTypes = decodeStrings(questions)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FetchChunks(ctx context.Context, tenantID string, ids []string) ([]ChunkContent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, chunk_index, text, document_section, heading_context
		FROM chunks WHERE tenant_id = ? AND id IN (%s)
		ORDER BY document_id, chunk_index`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}

func (s *SQLiteStore) FetchDocumentChunks(ctx context.Context, tenantID, documentID string, limit int) ([]ChunkContent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, text, document_section, heading_context
		FROM chunks WHERE tenant_id = ? AND document_id = ?
		ORDER BY chunk_index LIMIT ?`, tenantID, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}

// StoredChunk is the write-side row shape used by the seed CLI and tests.
type StoredChunk struct {
	ChunkMetadata
	Text string `json:"text"`
}

// SaveChunks upserts rows in one transaction. Callers owning a MetadataCache
// must invalidate the tenant afterwards.
func (s *SQLiteStore) SaveChunks(ctx context.Context, tenantID string, chunks []StoredChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (tenant_id, id, document_id, chunk_index, text, document_section,
			chunk_type, topics, keywords, entities, heading_context, audience, question_types)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			document_section = excluded.document_section,
			chunk_type = excluded.chunk_type,
			topics = excluded.topics,
			keywords = excluded.keywords,
			entities = excluded.entities,
			heading_context = excluded.heading_context,
			audience = excluded.audience,
			question_types = excluded.question_types`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("chunk id is required")
		}
		_, err := stmt.ExecContext(ctx, tenantID, c.ID, c.DocumentID, c.ChunkIndex, c.Text,
			c.DocumentSection, c.ChunkType,
			encodeStrings(c.Topics), encodeStrings(c.Keywords), encodeStrings(c.Entities),
			encodeStrings(c.HeadingContext), encodeStrings(c.Audience), encodeStrings(c.QuestionTypes))
		if err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteChunks removes the given chunk ids for a tenant.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM chunks WHERE tenant_id = ? AND id IN (%s)", placeholders), args...)
	return err
}

// DeleteDocument removes every chunk of one document for a tenant.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE tenant_id = ? AND document_id = ?", tenantID, documentID)
	return err
}

func scanContents(rows *sql.Rows) ([]ChunkContent, error) {
	var out []ChunkContent
	for rows.Next() {
		var c ChunkContent
		var headings string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.DocumentSection, &headings); err != nil {
			return nil, err
		}
		c.HeadingContext = decodeStrings(headings)
		out = append(out, c)
	}
	return out, rows.Err()
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
