package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Document is one entry in the in-memory store.
type Document struct {
	ID       string
	Title    string
	Filename string
	Content  string
	Tags     []string
	// OwnerID restricts content access to one user when set.
	OwnerID string
}

// MemoryDocumentStore is a keyword-scored DocumentStore for local development
// and tests. Scoring counts query-term occurrences in title and content,
// title hits weighted double.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]Document)}
}

// Add inserts or replaces a document.
func (s *MemoryDocumentStore) Add(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

// Search implements DocumentStore.
func (s *MemoryDocumentStore) Search(ctx context.Context, query string, limit int, filters []string) (*SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(strings.ToLower(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []SearchResult
	for _, doc := range s.docs {
		if !matchesFilters(doc.Tags, filters) {
			continue
		}
		score := scoreDoc(doc, terms)
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchResult{
			DocumentID:     doc.ID,
			Title:          doc.Title,
			Filename:       doc.Filename,
			ContentPreview: preview(doc.Content, 160),
			RelevanceScore: score,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RelevanceScore != hits[j].RelevanceScore {
			return hits[i].RelevanceScore > hits[j].RelevanceScore
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})

	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return &SearchResponse{Results: hits, TotalCount: total}, nil
}

// GetContent implements DocumentStore.
func (s *MemoryDocumentStore) GetContent(ctx context.Context, documentID, userID string) (ContentResult, error) {
	if err := ctx.Err(); err != nil {
		return ContentResult{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return ContentResult{Kind: ContentNotFound}, nil
	}
	if doc.OwnerID != "" && doc.OwnerID != userID {
		return ContentResult{Kind: ContentError, Reason: "access denied"}, nil
	}
	return ContentResult{Kind: ContentFound, Content: doc.Content}, nil
}

func matchesFilters(tags, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		for _, t := range tags {
			if strings.EqualFold(f, t) {
				return true
			}
		}
	}
	return false
}

func scoreDoc(doc Document, terms []string) float64 {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	var score float64
	for _, term := range terms {
		score += 2 * float64(strings.Count(title, term))
		score += float64(strings.Count(content, term))
	}
	return score
}

func preview(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
