package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nivaanlabs/vaani/internal/store"
)

// maxDocumentBytes caps knowledge uploads at 10 MB.
const maxDocumentBytes = 10 << 20

type documentMeta struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type documentResponse struct {
	documentMeta
	Content string `json:"content"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mimeType := documentMimeType(header.Filename, header.Header.Get("Content-Type"))
	if !supportedDocumentType(mimeType) {
		respondError(w, http.StatusUnsupportedMediaType, "unsupported_type",
			"only text and markdown documents are supported")
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	if len(content) > maxDocumentBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", "documents are limited to 10 MB")
		return
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_upload", "document is empty")
		return
	}

	doc, err := s.store.InsertDocument(r.Context(), store.DocumentRecord{
		Filename: path.Base(header.Filename),
		MimeType: mimeType,
		Content:  string(content),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "document_store_failed", err.Error())
		return
	}
	s.knowledge.InvalidateChunks()

	respondJSON(w, http.StatusCreated, documentMeta{
		ID:         doc.ID,
		Filename:   doc.Filename,
		MimeType:   doc.MimeType,
		Size:       len(doc.Content),
		UploadedAt: doc.UploadedAt,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "document_list_failed", err.Error())
		return
	}
	out := make([]documentMeta, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentMeta{
			ID:         doc.ID,
			Filename:   doc.Filename,
			MimeType:   doc.MimeType,
			Size:       len(doc.Content),
			UploadedAt: doc.UploadedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "document_not_found", "no such document")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "document_load_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, documentResponse{
		documentMeta: documentMeta{
			ID:         doc.ID,
			Filename:   doc.Filename,
			MimeType:   doc.MimeType,
			Size:       len(doc.Content),
			UploadedAt: doc.UploadedAt,
		},
		Content: doc.Content,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteDocument(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "document_not_found", "no such document")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "document_delete_failed", err.Error())
		return
	}
	s.knowledge.InvalidateChunks()
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func documentMimeType(filename, declared string) string {
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			return parsed
		}
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func supportedDocumentType(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/markdown":
		return true
	default:
		return strings.HasPrefix(mimeType, "text/")
	}
}
