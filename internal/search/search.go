package search

import (
	"context"
	"time"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	Tags       []string `json:"tags"`
	AuthorID   string   `json:"authorId"`
	AuthorName string   `json:"authorName"`
}

// Query describes a search request. Only published threads are ever searched.
type Query struct {
	Text   string
	Tag    string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push threads into a search index.
type Indexer interface {
	UpsertThreads(ctx context.Context, threads []ThreadRecord) error
	DeleteThread(ctx context.Context, id string) error
	Healthy() bool
}

// Loader reads indexable thread state from the system of record.
type Loader interface {
	LoadThreadRecord(ctx context.Context, id string) (ThreadRecord, bool, error)
	LoadAllRecords(ctx context.Context) ([]ThreadRecord, error)
}

// ThreadRecord is the data we index for a thread.
type ThreadRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	Body        string   `json:"body"`
	AuthorID    string   `json:"authorId"`
	AuthorName  string   `json:"authorName"`
	IsPublished bool     `json:"isPublished"`
	CreatedAt   int64    `json:"createdAt"`
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
