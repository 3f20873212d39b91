package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/nivaanlabs/vaani/internal/knowledge"
)

type personaResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Content       string    `json:"content,omitempty"`
	ContentLength int       `json:"content_length"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type updatePersonaRequest struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = knowledge.DefaultPersonaName
	}

	content, err := s.knowledge.LoadPersona(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persona_load_failed", err.Error())
		return
	}
	rec, err := s.store.GetPersona(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persona_load_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, personaResponse{
		ID:            rec.ID,
		Name:          rec.Name,
		Content:       content,
		ContentLength: len(content),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	})
}

func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var req updatePersonaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = knowledge.DefaultPersonaName
	}

	rec, err := s.knowledge.UpdatePersona(r.Context(), name, req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persona_update_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, personaResponse{
		ID:            rec.ID,
		Name:          rec.Name,
		ContentLength: len(rec.Content),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	})
}
