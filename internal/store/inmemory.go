package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	personas  map[string]PersonaRecord
	documents map[string]DocumentRecord
	calls     []CallRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		personas:  make(map[string]PersonaRecord),
		documents: make(map[string]DocumentRecord),
	}
}

func (s *InMemoryStore) GetPersona(_ context.Context, name string) (PersonaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.personas[name]
	if !ok {
		return PersonaRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) UpsertPersona(_ context.Context, name, content string) (PersonaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	rec, ok := s.personas[name]
	if !ok {
		rec = PersonaRecord{ID: uuid.NewString(), Name: name, CreatedAt: now}
	}
	rec.Content = content
	rec.UpdatedAt = now
	s.personas[name] = rec
	return rec, nil
}

func (s *InMemoryStore) InsertDocument(_ context.Context, doc DocumentRecord) (DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	s.documents[doc.ID] = doc
	return doc, nil
}

func (s *InMemoryStore) ListDocuments(_ context.Context) ([]DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DocumentRecord, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (s *InMemoryStore) GetDocument(_ context.Context, id string) (DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return DocumentRecord{}, ErrNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *InMemoryStore) SaveCall(_ context.Context, record CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.calls = append(s.calls, record)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
