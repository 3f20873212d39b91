package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists personas, documents and call records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			content TEXT NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			call_sid TEXT NOT NULL,
			direction TEXT NOT NULL,
			transcript JSONB NOT NULL DEFAULT '[]',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_call_sid ON calls (call_sid);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetPersona(ctx context.Context, name string) (PersonaRecord, error) {
	var rec PersonaRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, content, created_at, updated_at FROM personas WHERE name=$1`,
		name,
	).Scan(&rec.ID, &rec.Name, &rec.Content, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PersonaRecord{}, ErrNotFound
	}
	if err != nil {
		return PersonaRecord{}, fmt.Errorf("get persona: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) UpsertPersona(ctx context.Context, name, content string) (PersonaRecord, error) {
	now := time.Now().UTC()
	var rec PersonaRecord
	err := s.pool.QueryRow(ctx,
		`INSERT INTO personas (id, name, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (name) DO UPDATE SET content=EXCLUDED.content, updated_at=EXCLUDED.updated_at
		 RETURNING id, name, content, created_at, updated_at`,
		uuid.NewString(), name, content, now,
	).Scan(&rec.ID, &rec.Name, &rec.Content, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return PersonaRecord{}, fmt.Errorf("upsert persona: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc DocumentRecord) (DocumentRecord, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, filename, mime_type, content, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Filename, doc.MimeType, doc.Content, doc.UploadedAt,
	)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, mime_type, content, uploaded_at FROM documents ORDER BY uploaded_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.MimeType, &doc.Content, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (DocumentRecord, error) {
	var doc DocumentRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, mime_type, content, uploaded_at FROM documents WHERE id=$1`,
		id,
	).Scan(&doc.ID, &doc.Filename, &doc.MimeType, &doc.Content, &doc.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DocumentRecord{}, ErrNotFound
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveCall(ctx context.Context, record CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	transcript, err := json.Marshal(record.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO calls (id, call_sid, direction, transcript, duration_ms, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.CallSid, record.Direction, transcript, record.DurationMS, record.Status, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
