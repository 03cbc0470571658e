// Package retrieval defines the collaborator contracts agents use to reach
// document search, content fetch, embeddings, and the knowledge graph.
// Content fetch returns a tagged result instead of error-prefixed strings so
// callers branch on a kind, not a prefix.
package retrieval
