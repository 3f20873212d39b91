package store

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryPersonaUpsert(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.GetPersona(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPersona on empty store: err = %v, want ErrNotFound", err)
	}

	first, err := s.UpsertPersona(ctx, "default", "v1")
	if err != nil {
		t.Fatalf("UpsertPersona() error = %v", err)
	}
	if first.ID == "" || first.Name != "default" || first.Content != "v1" {
		t.Fatalf("unexpected record: %+v", first)
	}

	second, err := s.UpsertPersona(ctx, "default", "v2")
	if err != nil {
		t.Fatalf("UpsertPersona() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert changed record id")
	}
	if second.Content != "v2" {
		t.Fatalf("content = %q, want %q", second.Content, "v2")
	}

	got, err := s.GetPersona(ctx, "default")
	if err != nil {
		t.Fatalf("GetPersona() error = %v", err)
	}
	if got.Content != "v2" {
		t.Fatalf("persisted content = %q, want %q", got.Content, "v2")
	}
}

func TestInMemoryDocumentLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	doc, err := s.InsertDocument(ctx, DocumentRecord{Filename: "pricing.md", MimeType: "text/markdown", Content: "# Pricing"})
	if err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	if doc.ID == "" || doc.UploadedAt.IsZero() {
		t.Fatalf("insert did not fill defaults: %+v", doc)
	}

	list, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != doc.ID {
		t.Fatalf("unexpected listing: %+v", list)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil || got.Content != "# Pricing" {
		t.Fatalf("GetDocument() = %+v, %v", got, err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if err := s.DeleteDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestInMemorySaveCall(t *testing.T) {
	s := NewInMemoryStore()
	err := s.SaveCall(context.Background(), CallRecord{
		CallSid:   "CA1",
		Direction: "inbound",
		Status:    "completed",
		Transcript: []TranscriptEntry{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
	})
	if err != nil {
		t.Fatalf("SaveCall() error = %v", err)
	}
	if len(s.calls) != 1 || s.calls[0].ID == "" {
		t.Fatalf("call record not persisted with id: %+v", s.calls)
	}
}
