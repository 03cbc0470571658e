package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *MemoryDocumentStore {
	s := NewMemoryDocumentStore()
	s.Add(Document{ID: "d1", Title: "France travel guide", Content: "Paris is the capital of France.", Tags: []string{"travel"}})
	s.Add(Document{ID: "d2", Title: "European capitals", Content: "France: Paris. Germany: Berlin.", Tags: []string{"reference"}})
	s.Add(Document{ID: "d3", Title: "Cooking basics", Content: "How to make an omelette.", Tags: []string{"cooking"}})
	s.Add(Document{ID: "d4", Title: "Private notes", Content: "secret", OwnerID: "alice"})
	return s
}

func TestSearch_RanksAndLimits(t *testing.T) {
	s := seededStore()
	resp, err := s.Search(context.Background(), "France capital", 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalCount)
	require.Len(t, resp.Results, 1)
	assert.NotEmpty(t, resp.Results[0].DocumentID)
	assert.Greater(t, resp.Results[0].RelevanceScore, 0.0)
}

func TestSearch_FilterByTag(t *testing.T) {
	s := seededStore()
	resp, err := s.Search(context.Background(), "France", 10, []string{"travel"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
}

func TestGetContent_TaggedResults(t *testing.T) {
	s := seededStore()
	ctx := context.Background()

	found, err := s.GetContent(ctx, "d1", "anyone")
	require.NoError(t, err)
	assert.True(t, found.Found())
	assert.Contains(t, found.Content, "Paris")

	missing, err := s.GetContent(ctx, "nope", "anyone")
	require.NoError(t, err)
	assert.Equal(t, ContentNotFound, missing.Kind)

	denied, err := s.GetContent(ctx, "d4", "bob")
	require.NoError(t, err)
	assert.Equal(t, ContentError, denied.Kind)
	assert.Equal(t, "access denied", denied.Reason)

	owner, err := s.GetContent(ctx, "d4", "alice")
	require.NoError(t, err)
	assert.True(t, owner.Found())
}
