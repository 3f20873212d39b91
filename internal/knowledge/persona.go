package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nivaanlabs/vaani/internal/store"
)

// LoadPersona returns the persona content for name (default "default").
// A missing record is seeded from the built-in fallback and persisted.
// Results are cached in-process; the cache is invalidated on update.
func (s *Service) LoadPersona(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = DefaultPersonaName
	}

	s.personaMu.Lock()
	entry, ok := s.personaCache[name]
	s.personaMu.Unlock()
	if ok && time.Since(entry.cachedAt) < s.personaTTL {
		return entry.content, nil
	}

	rec, err := s.store.GetPersona(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		rec, err = s.store.UpsertPersona(ctx, name, FallbackPersona)
	}
	if err != nil {
		return "", fmt.Errorf("load persona %q: %w", name, err)
	}

	s.personaMu.Lock()
	s.personaCache[name] = personaEntry{content: rec.Content, cachedAt: time.Now()}
	s.personaMu.Unlock()
	return rec.Content, nil
}

// UpdatePersona upserts the record and invalidates the cache entry.
func (s *Service) UpdatePersona(ctx context.Context, name, content string) (store.PersonaRecord, error) {
	if name == "" {
		name = DefaultPersonaName
	}
	rec, err := s.store.UpsertPersona(ctx, name, content)
	if err != nil {
		return store.PersonaRecord{}, fmt.Errorf("update persona %q: %w", name, err)
	}

	s.personaMu.Lock()
	delete(s.personaCache, name)
	s.personaMu.Unlock()
	return rec, nil
}
