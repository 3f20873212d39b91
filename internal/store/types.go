package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// PersonaRecord is a named persona prompt. One record is named "default".
type PersonaRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentRecord is one uploaded knowledge document.
type DocumentRecord struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	Content    string    `json:"content"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// TranscriptEntry is one persisted conversation turn.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallRecord is the persisted outcome of one call.
type CallRecord struct {
	ID         string            `json:"id"`
	CallSid    string            `json:"call_sid"`
	Direction  string            `json:"direction"`
	Transcript []TranscriptEntry `json:"transcript"`
	DurationMS int64             `json:"duration_ms"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store persists personas, knowledge documents and call transcripts.
type Store interface {
	GetPersona(ctx context.Context, name string) (PersonaRecord, error)
	UpsertPersona(ctx context.Context, name, content string) (PersonaRecord, error)

	InsertDocument(ctx context.Context, doc DocumentRecord) (DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	GetDocument(ctx context.Context, id string) (DocumentRecord, error)
	DeleteDocument(ctx context.Context, id string) error

	SaveCall(ctx context.Context, record CallRecord) error

	Close() error
}
