package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	phraseMatchBonus  = 5
	headingChunkBonus = 1
	DefaultTopK       = 3
)

type chunkSnapshot struct {
	chunks  []string
	builtAt time.Time
}

// RelevantChunks scores every chunk across all documents against the query
// and returns the top k with score > 0, best first. Ties break by ascending
// chunk index so results are deterministic.
func (s *Service) RelevantChunks(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return nil, nil
	}

	chunks, err := s.allChunks(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	tokens := queryTokens(query)

	type scored struct {
		index int
		score int
	}
	var hits []scored
	for i, chunk := range chunks {
		sc := scoreChunk(chunk, query, tokens)
		if sc > 0 {
			hits = append(hits, scored{index: i, score: sc})
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].index < hits[b].index
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, chunks[h.index])
	}
	return out, nil
}

// InvalidateChunks drops the chunk cache. Called on any document write.
func (s *Service) InvalidateChunks() {
	s.chunks.Store(nil)
}

func (s *Service) allChunks(ctx context.Context) ([]string, error) {
	if snap := s.chunks.Load(); snap != nil && time.Since(snap.builtAt) < s.chunksTTL {
		return snap.chunks, nil
	}

	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var chunks []string
	for _, doc := range docs {
		chunks = append(chunks, ChunkText(doc.Content, s.chunkSize, s.chunkOverlap)...)
	}

	s.chunks.Store(&chunkSnapshot{chunks: chunks, builtAt: time.Now()})
	return chunks, nil
}

// queryTokens splits the lowercased query on whitespace, discarding tokens
// shorter than two characters.
func queryTokens(query string) []string {
	fields := strings.Fields(query)
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func scoreChunk(chunk, query string, tokens []string) int {
	lower := strings.ToLower(chunk)

	score := 0
	for _, tok := range tokens {
		score += countWordBoundaryMatches(lower, tok)
	}
	if strings.Contains(lower, query) {
		score += phraseMatchBonus
	}
	trimmed := strings.TrimSpace(chunk)
	if strings.HasPrefix(trimmed, "#") || strings.HasSuffix(trimmed, ":") {
		score += headingChunkBonus
	}
	return score
}

func countWordBoundaryMatches(text, token string) int {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(token) + `\b`)
	if err != nil {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}
