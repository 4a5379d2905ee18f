package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocs struct {
	added   []HistoryDoc
	deleted []string
	cleared int
	request *meilisearch.SearchRequest
	hits    []interface{}
	err     error
}

func (f *fakeDocs) AddDocuments(docs interface{}, _ ...string) (*meilisearch.TaskInfo, error) {
	f.added = append(f.added, docs.([]HistoryDoc)...)
	return &meilisearch.TaskInfo{}, f.err
}

func (f *fakeDocs) DeleteDocument(id string) (*meilisearch.TaskInfo, error) {
	f.deleted = append(f.deleted, id)
	return &meilisearch.TaskInfo{}, f.err
}

func (f *fakeDocs) DeleteAllDocuments() (*meilisearch.TaskInfo, error) {
	f.cleared++
	return &meilisearch.TaskInfo{}, f.err
}

func (f *fakeDocs) Search(_ string, req *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error) {
	f.request = req
	if f.err != nil {
		return nil, f.err
	}
	return &meilisearch.SearchResponse{Hits: f.hits, EstimatedTotalHits: int64(len(f.hits))}, nil
}

func TestDocID(t *testing.T) {
	id := DocID("some.user")
	assert.Len(t, id, 32)
	assert.Regexp(t, "^[a-f0-9]+$", id)
	assert.Equal(t, id, DocID("some.user"))
	assert.NotEqual(t, id, DocID("some_user"))
}

func TestHistoryIndex_Observer(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocs{}
	h := newHistoryIndex(docs, nil)
	h.now = func() time.Time { return time.Unix(1700000000, 0) }

	h.HistoryAdded(ctx, []string{"alice", "bob"})
	h.HistoryAdded(ctx, nil)
	h.HistoryRemoved(ctx, "alice")
	h.HistoryCleared(ctx)

	require.Len(t, docs.added, 2)
	assert.Equal(t, HistoryDoc{ID: DocID("alice"), Username: "alice", BlockedAt: 1700000000}, docs.added[0])
	assert.Equal(t, []string{DocID("alice")}, docs.deleted)
	assert.Equal(t, 1, docs.cleared)
}

func TestHistoryIndex_ErrorsAreLogged(t *testing.T) {
	docs := &fakeDocs{err: errors.New("down")}
	h := newHistoryIndex(docs, nil)
	assert.NotPanics(t, func() {
		h.HistoryAdded(context.Background(), []string{"alice"})
		h.HistoryRemoved(context.Background(), "alice")
	})
}

func TestHistoryIndex_Search(t *testing.T) {
	docs := &fakeDocs{hits: []interface{}{
		map[string]interface{}{"id": "x", "username": "alice", "blocked_at": float64(1700000000)},
		map[string]interface{}{"id": "y"},
		"garbage",
	}}
	h := newHistoryIndex(docs, nil)

	hits, total, err := h.Search("ali", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice", hits[0].Username)
	assert.Equal(t, int64(1700000000), hits[0].BlockedAt.Unix())
	assert.Equal(t, int64(20), docs.request.Limit)
	assert.Equal(t, []string{"blocked_at:desc"}, docs.request.Sort)
}

func TestHistoryIndex_SearchError(t *testing.T) {
	h := newHistoryIndex(&fakeDocs{err: errors.New("down")}, nil)
	_, _, err := h.Search("x", 5)
	assert.Error(t, err)
}
