// Package knowledge layers persona loading and keyword retrieval over the
// persistent store, with short-lived in-process caches on both.
package knowledge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nivaanlabs/vaani/internal/store"
)

const (
	DefaultPersonaName = "default"

	personaCacheTTL = 5 * time.Minute
	chunkCacheTTL   = 10 * time.Minute
)

// FallbackPersona seeds the store when no persona record exists yet.
const FallbackPersona = "You are Vaani, a warm and helpful voice assistant for customer calls. " +
	"Keep replies short, conversational and polite. Answer only what the caller asked."

// Service caches persona content and document chunks over a Store.
type Service struct {
	store store.Store

	personaTTL   time.Duration
	chunksTTL    time.Duration
	chunkSize    int
	chunkOverlap int

	personaMu    sync.Mutex
	personaCache map[string]personaEntry

	chunks atomic.Pointer[chunkSnapshot]
}

type personaEntry struct {
	content  string
	cachedAt time.Time
}

func NewService(st store.Store) *Service {
	return &Service{
		store:        st,
		personaTTL:   personaCacheTTL,
		chunksTTL:    chunkCacheTTL,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		personaCache: make(map[string]personaEntry),
	}
}
