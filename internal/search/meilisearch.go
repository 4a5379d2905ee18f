package search

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

// documents is the part of a meilisearch index the history index uses
type documents interface {
	AddDocuments(documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
	DeleteDocument(identifier string) (*meilisearch.TaskInfo, error)
	DeleteAllDocuments() (*meilisearch.TaskInfo, error)
	Search(query string, request *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error)
}

// HistoryDoc is one blocked account in the index
type HistoryDoc struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	BlockedAt int64  `json:"blocked_at"`
}

// Hit is one search result
type Hit struct {
	Username  string    `json:"username"`
	BlockedAt time.Time `json:"blocked_at"`
}

// HistoryIndex mirrors the block history into meilisearch
type HistoryIndex struct {
	client *meilisearch.Client
	uid    string
	docs   documents
	log    *zap.Logger
	now    func() time.Time
}

// NewHistoryIndex connects to host and uses index uid
func NewHistoryIndex(host, apiKey, uid string, log *zap.Logger) *HistoryIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	h := newHistoryIndex(client.Index(uid), log)
	h.client = client
	h.uid = uid
	return h
}

func newHistoryIndex(docs documents, log *zap.Logger) *HistoryIndex {
	if log == nil {
		log = zap.NewNop()
	}
	return &HistoryIndex{docs: docs, log: log, now: time.Now}
}

// InitIndex creates the index and its settings
func (h *HistoryIndex) InitIndex() error {
	if h.client == nil {
		return nil
	}
	_, err := h.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        h.uid,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	index := h.client.Index(h.uid)
	if _, err := index.UpdateSearchableAttributes(&[]string{"username"}); err != nil {
		return err
	}
	if _, err := index.UpdateSortableAttributes(&[]string{"blocked_at"}); err != nil {
		return err
	}
	return nil
}

// DocID maps a username onto the id alphabet meilisearch accepts
func DocID(username string) string {
	sum := md5.Sum([]byte(username))
	return hex.EncodeToString(sum[:])
}

// HistoryAdded indexes newly blocked accounts
func (h *HistoryIndex) HistoryAdded(_ context.Context, users []string) {
	if len(users) == 0 {
		return
	}
	at := h.now().Unix()
	docs := make([]HistoryDoc, 0, len(users))
	for _, u := range users {
		docs = append(docs, HistoryDoc{ID: DocID(u), Username: u, BlockedAt: at})
	}
	if _, err := h.docs.AddDocuments(docs, "id"); err != nil {
		h.log.Warn("history index add failed", zap.Int("count", len(docs)), zap.Error(err))
	}
}

// HistoryRemoved drops one account from the index
func (h *HistoryIndex) HistoryRemoved(_ context.Context, user string) {
	if _, err := h.docs.DeleteDocument(DocID(user)); err != nil {
		h.log.Warn("history index delete failed", zap.String("username", user), zap.Error(err))
	}
}

// HistoryCleared empties the index
func (h *HistoryIndex) HistoryCleared(_ context.Context) {
	if _, err := h.docs.DeleteAllDocuments(); err != nil {
		h.log.Warn("history index clear failed", zap.Error(err))
	}
}

// Sync replaces the index contents with users
func (h *HistoryIndex) Sync(ctx context.Context, users []string) {
	h.HistoryCleared(ctx)
	h.HistoryAdded(ctx, users)
}

// Search returns accounts matching query, most recently blocked first
func (h *HistoryIndex) Search(query string, limit int64) ([]Hit, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := h.docs.Search(query, &meilisearch.SearchRequest{
		Limit: limit,
		Sort:  []string{"blocked_at:desc"},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("search history: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, raw := range res.Hits {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		hit := Hit{Username: getString(m, "username")}
		if at, ok := m["blocked_at"].(float64); ok {
			hit.BlockedAt = time.Unix(int64(at), 0)
		}
		if hit.Username != "" {
			hits = append(hits, hit)
		}
	}
	return hits, res.EstimatedTotalHits, nil
}

// getString safely extracts a string from map
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
