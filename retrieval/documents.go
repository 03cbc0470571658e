package retrieval

import "context"

// SearchResult is one hit from document search.
type SearchResult struct {
	DocumentID     string  `json:"document_id"`
	Title          string  `json:"title"`
	Filename       string  `json:"filename,omitempty"`
	ContentPreview string  `json:"content_preview,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SearchResponse is the full answer to one search call.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
}

// ContentKind tags the outcome of a content fetch.
type ContentKind int

const (
	ContentFound ContentKind = iota
	ContentNotFound
	ContentError
)

// ContentResult is the tagged outcome of GetContent.
type ContentResult struct {
	Kind    ContentKind
	Content string
	// Reason describes the failure for ContentError.
	Reason string
}

// Found reports whether content was retrieved.
func (r ContentResult) Found() bool { return r.Kind == ContentFound }

// DocumentStore is the document-search collaborator.
type DocumentStore interface {
	// Search returns up to limit results ranked by relevance. Filters
	// restrict by source tag and may be nil.
	Search(ctx context.Context, query string, limit int, filters []string) (*SearchResponse, error)

	// GetContent fetches the full text of a document the user may read.
	// Transport failures return an error; a missing or unreadable document
	// is reported in the result tag.
	GetContent(ctx context.Context, documentID, userID string) (ContentResult, error)
}

// Embedder produces vector embeddings for texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Relation is one edge in the knowledge graph.
type Relation struct {
	Subject   string  `json:"subject"`
	Predicate string  `json:"predicate"`
	Object    string  `json:"object"`
	Weight    float64 `json:"weight,omitempty"`
}

// KnowledgeGraph exposes entity relations for research agents.
type KnowledgeGraph interface {
	Related(ctx context.Context, entity string, limit int) ([]Relation, error)
}
